package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
)

const (
	MaxAttempts = 3
	retryStep   = 30 * time.Second
	claimLease  = 5 * time.Minute
	batchSize   = 50
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, toName, subject, body string) error
}

// PushSender returns the push service's HTTP status alongside any error.
type PushSender interface {
	SendPush(ctx context.Context, sub PushSubscription, payload []byte) (int, error)
}

// permanent marks failures that retrying cannot fix.
type permanent struct{ error }

func (p permanent) Unwrap() error { return p.error }

func isPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// NextAttempt returns the state after a failed attempt: failed at
// MaxAttempts, otherwise pending again after attempts*30s.
func NextAttempt(attempts int, now time.Time) (DeliveryStatus, time.Time) {
	if attempts >= MaxAttempts {
		return DeliveryFailed, now
	}
	return DeliveryPending, now.Add(time.Duration(attempts) * retryStep)
}

type Worker struct {
	Email   EmailSender
	Push    PushSender
	BaseURL string
	now     func() time.Time
}

func NewWorker(email EmailSender, push PushSender, baseURL string) *Worker {
	return &Worker{Email: email, Push: push, BaseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

// Schedule runs RunOnce on spec (e.g. "@every 30s").
func (w *Worker) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := w.RunOnce(ctx); err != nil {
			logs.LogJSON("ERROR", "Delivery run failed", map[string]interface{}{"error": err.Error()})
		} else if n > 0 {
			logs.LogJSON("INFO", "Deliveries processed", map[string]interface{}{"count": n})
		}
	})
}

// RunOnce processes due deliveries and returns how many it attempted.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()

	var due []Delivery
	err := database.DB.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", DeliveryPending, now).
		Order("next_attempt_at").
		Limit(batchSize).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, d := range due {
		claimed, err := w.claim(ctx, d, now)
		if err != nil {
			return processed, err
		}
		if !claimed {
			continue
		}

		sendErr := w.deliver(ctx, d)
		if err := w.finish(ctx, d, sendErr); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// claim leases the row so another instance does not send it concurrently.
func (w *Worker) claim(ctx context.Context, d Delivery, now time.Time) (bool, error) {
	res := database.DB.WithContext(ctx).Model(&Delivery{}).
		Where("id = ? AND status = ? AND next_attempt_at <= ?", d.ID, DeliveryPending, now).
		UpdateColumn("next_attempt_at", now.Add(claimLease))
	return res.RowsAffected == 1, res.Error
}

func (w *Worker) finish(ctx context.Context, d Delivery, sendErr error) error {
	updates := map[string]interface{}{"attempts": d.Attempts + 1}
	fields := map[string]interface{}{
		"deliveryID": d.ID,
		"channel":    d.Channel,
		"userID":     d.UserID,
		"attempt":    d.Attempts + 1,
	}

	switch {
	case sendErr == nil:
		updates["status"] = DeliverySent
		updates["last_error"] = ""
		logs.LogJSON("DEBUG", "Notification delivered", fields)
	case isPermanent(sendErr):
		updates["status"] = DeliveryFailed
		updates["last_error"] = sendErr.Error()
		fields["error"] = sendErr.Error()
		logs.LogJSON("WARN", "Notification delivery abandoned", fields)
	default:
		status, next := NextAttempt(d.Attempts+1, w.now())
		updates["status"] = status
		updates["next_attempt_at"] = next
		updates["last_error"] = sendErr.Error()
		fields["error"] = sendErr.Error()
		fields["status"] = status
		logs.LogJSON("WARN", "Notification delivery failed", fields)
	}

	return database.DB.WithContext(ctx).Model(&Delivery{}).Where("id = ?", d.ID).UpdateColumns(updates).Error
}

func (w *Worker) deliver(ctx context.Context, d Delivery) error {
	var n Notification
	if err := database.DB.WithContext(ctx).First(&n, "id = ?", d.NotificationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return permanent{errors.New("notification no longer exists")}
		}
		return err
	}

	switch d.Channel {
	case ChannelEmail:
		return w.sendEmail(ctx, n)
	case ChannelPush:
		return w.sendPush(ctx, n)
	default:
		return permanent{fmt.Errorf("unknown channel %q", d.Channel)}
	}
}

func (w *Worker) link() string {
	return w.BaseURL + "/notifications"
}

func (w *Worker) sendEmail(ctx context.Context, n Notification) error {
	if w.Email == nil {
		return permanent{errors.New("email channel is not configured")}
	}

	var recipient struct {
		Email       string
		DisplayName string
	}
	err := database.DB.WithContext(ctx).Table("users").
		Select("email", "display_name").
		Where("id = ?", n.UserID).
		Take(&recipient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return permanent{errors.New("recipient no longer exists")}
		}
		return err
	}
	if recipient.Email == "" {
		return permanent{errors.New("recipient has no email address")}
	}

	body := n.Message + "\n\n" + w.link()
	return w.Email.SendEmail(ctx, recipient.Email, recipient.DisplayName, "[CastChat] "+n.Title, body)
}

func (w *Worker) sendPush(ctx context.Context, n Notification) error {
	if w.Push == nil {
		return permanent{errors.New("push channel is not configured")}
	}

	var subs []PushSubscription
	if err := database.DB.WithContext(ctx).Where("user_id = ?", n.UserID).Find(&subs).Error; err != nil {
		return err
	}
	if len(subs) == 0 {
		return permanent{errors.New("user has no push subscriptions")}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"notification_id": n.ID,
		"type":            n.Type,
		"title":           n.Title,
		"body":            n.Message,
		"url":             w.link(),
	})
	if err != nil {
		return permanent{err}
	}

	delivered := 0
	var lastErr error
	for _, sub := range subs {
		status, err := w.Push.SendPush(ctx, sub, payload)
		if status == http.StatusNotFound || status == http.StatusGone {
			// The browser dropped the subscription.
			if err := database.DB.WithContext(ctx).Delete(&PushSubscription{}, "id = ?", sub.ID).Error; err != nil {
				logs.LogJSON("WARN", "Failed to delete expired push subscription", map[string]interface{}{
					"subscriptionID": sub.ID,
					"error":          err.Error(),
				})
			}
			continue
		}
		if err == nil && status >= 300 {
			err = fmt.Errorf("push service returned %d", status)
		}
		if err != nil {
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered > 0 {
		return nil
	}
	if lastErr == nil {
		return permanent{errors.New("every push subscription has expired")}
	}
	return lastErr
}
