package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tanakadamon1/castchat-sub000/internal/logs"
)

const ChangesChannel = "castchat_changes"

type changePayload struct {
	Table   string   `json:"table"`
	Op      string   `json:"op"`
	UserIDs []string `json:"user_ids"`
}

// ParseChange converts a pg_notify payload into a DatabaseChange event.
func ParseChange(payload string) (Event, error) {
	var p changePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Event{}, fmt.Errorf("decode change payload: %w", err)
	}

	ids := make([]string, 0, len(p.UserIDs))
	seen := make(map[string]bool, len(p.UserIDs))
	for _, id := range p.UserIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	return Event{
		Type:    DatabaseChange,
		UserIDs: ids,
		At:      time.Now().UTC(),
		Data: map[string]interface{}{
			"table": p.Table,
			"op":    p.Op,
		},
	}, nil
}

// Listener relays Postgres NOTIFY messages from the change triggers onto a Bus.
type Listener struct {
	dsn   string
	bus   *Bus
	retry time.Duration
}

func NewListener(dsn string, bus *Bus) *Listener {
	return &Listener{dsn: dsn, bus: bus, retry: 5 * time.Second}
}

// Run blocks until ctx is cancelled, reconnecting after failures.
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		logs.LogJSON("WARN", "Change listener disconnected", map[string]interface{}{
			"error": fmt.Sprint(err),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retry):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+ChangesChannel); err != nil {
		return err
	}
	logs.LogJSON("INFO", "Listening for database changes", map[string]interface{}{
		"channel": ChangesChannel,
	})

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		e, err := ParseChange(n.Payload)
		if err != nil {
			logs.LogJSON("WARN", "Ignoring malformed change notification", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		l.bus.Publish(ctx, e)
	}
}
