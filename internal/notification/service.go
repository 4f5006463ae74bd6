// Package notification stores in-app notifications and fans them out to
// email and web push through the delivery worker.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/events"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
)

// Create stores a notification and queues its deliveries. It returns nil,
// nil when the user muted the type.
func Create(ctx context.Context, userID string, typ Type, title, message string, data map[string]interface{}) (*Notification, error) {
	if userID == "" {
		return nil, apperr.Validation("notification needs a recipient")
	}
	if !typ.IsValid() {
		return nil, apperr.Validation("unknown notification type")
	}
	if title == "" {
		return nil, apperr.Validation("notification needs a title")
	}

	settings, err := GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings.Muted(typ) {
		logs.LogJSON("DEBUG", "Notification muted", map[string]interface{}{
			"userID": userID,
			"type":   typ,
		})
		return nil, nil
	}

	var payload datatypes.JSON
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeValidation, "notification data is not serializable")
		}
		payload = raw
	}

	n := Notification{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      payload,
	}

	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&n).Error; err != nil {
			return err
		}

		var deliveries []Delivery
		if settings.EmailEnabled {
			deliveries = append(deliveries, newDelivery(n, ChannelEmail))
		}
		if settings.PushEnabled {
			var subs int64
			if err := tx.Model(&PushSubscription{}).Where("user_id = ?", userID).Count(&subs).Error; err != nil {
				return err
			}
			if subs > 0 {
				deliveries = append(deliveries, newDelivery(n, ChannelPush))
			}
		}
		if len(deliveries) == 0 {
			return nil
		}
		return tx.Create(&deliveries).Error
	})
	if err != nil {
		return nil, err
	}

	events.Publish(ctx, events.Event{
		Type:     events.NotificationCreated,
		UserIDs:  []string{userID},
		EntityID: n.ID,
		Data:     map[string]interface{}{"type": string(typ)},
	})
	return &n, nil
}

func newDelivery(n Notification, ch Channel) Delivery {
	return Delivery{
		ID:             uuid.New().String(),
		CreatedAt:      n.CreatedAt,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Channel:        ch,
		Status:         DeliveryPending,
		NextAttemptAt:  n.CreatedAt,
	}
}

// Notify is Create for side effects: failures are logged, never returned.
func Notify(ctx context.Context, userID string, typ Type, title, message string, data map[string]interface{}) {
	if _, err := Create(ctx, userID, typ, title, message, data); err != nil {
		logs.LogJSON("WARN", "Failed to send notification", map[string]interface{}{
			"userID": userID,
			"type":   typ,
			"error":  err.Error(),
		})
	}
}

func List(ctx context.Context, userID string, unreadOnly bool, page httpx.Page) ([]Notification, int64, error) {
	q := database.DB.WithContext(ctx).Model(&Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	list := []Notification{}
	err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&list).Error
	return list, total, err
}

func MarkRead(ctx context.Context, userID, id string) error {
	res := database.DB.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": gorm.Expr("COALESCE(read_at, ?)", time.Now()),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification")
	}

	events.Publish(ctx, events.Event{Type: events.NotificationsRead, UserIDs: []string{userID}, EntityID: id})
	return nil
}

func MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := database.DB.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		events.Publish(ctx, events.Event{Type: events.NotificationsRead, UserIDs: []string{userID}})
	}
	return res.RowsAffected, nil
}

func Delete(ctx context.Context, userID, id string) error {
	res := database.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification")
	}

	events.Publish(ctx, events.Event{Type: events.NotificationDeleted, UserIDs: []string{userID}, EntityID: id})
	return nil
}

func UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := database.DB.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// GetSettings returns the stored settings or the defaults.
func GetSettings(ctx context.Context, userID string) (Settings, error) {
	var s Settings
	err := database.DB.WithContext(ctx).Where("user_id = ?", userID).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultSettings(userID), nil
	}
	if err != nil {
		return Settings{}, err
	}
	if s.MutedTypes == nil {
		s.MutedTypes = []string{}
	}
	return s, nil
}
