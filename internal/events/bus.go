package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tanakadamon1/castchat-sub000/internal/logs"
)

const (
	ApplicationCreated       = "application.created"
	ApplicationStatusChanged = "application.status_changed"
	MessageCreated           = "message.created"
	MessagesRead             = "message.read"
	NotificationCreated      = "notification.created"
	NotificationsRead        = "notification.read"
	NotificationDeleted      = "notification.deleted"
	PostClosed               = "post.closed"
	PaymentCompleted         = "payment.completed"
	DatabaseChange           = "db.change"
)

type Event struct {
	Type     string                 `json:"type"`
	UserIDs  []string               `json:"user_ids"`
	EntityID string                 `json:"entity_id,omitempty"`
	At       time.Time              `json:"at"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

type Handler func(ctx context.Context, e Event)

// Sink receives every published event after local handlers ran (e.g. Kafka).
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Bus is an in-process pub/sub keyed by event type. A subscription to
// "application.*" receives every application event; "*" receives all.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	sink     Sink
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

func (b *Bus) Subscribe(pattern string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], h)
}

func (b *Bus) SetSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = s
}

// Publish runs matching handlers synchronously then forwards to the sink.
// Handler panics and sink errors are logged, never returned.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	var matched []Handler
	for pattern, hs := range b.handlers {
		if matches(pattern, e.Type) {
			matched = append(matched, hs...)
		}
	}
	sink := b.sink
	b.mu.RUnlock()

	for _, h := range matched {
		b.run(ctx, h, e)
	}

	if sink != nil {
		if err := sink.Send(ctx, e); err != nil {
			logs.LogJSON("WARN", "Event sink publish failed", map[string]interface{}{
				"error": err.Error(),
				"event": e.Type,
			})
		}
	}
}

func (b *Bus) run(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.LogJSON("ERROR", "Event handler panicked", map[string]interface{}{
				"event": e.Type,
				"panic": fmt.Sprint(r),
			})
		}
	}()
	h(ctx, e)
}

func (b *Bus) Close() error {
	b.mu.RLock()
	sink := b.sink
	b.mu.RUnlock()
	if sink == nil {
		return nil
	}
	return sink.Close()
}

func matches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

var Default = NewBus()

func Publish(ctx context.Context, e Event) {
	Default.Publish(ctx, e)
}

func Subscribe(pattern string, h Handler) {
	Default.Subscribe(pattern, h)
}
