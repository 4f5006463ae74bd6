package notification

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm/clause"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
)

type SettingsInput struct {
	EmailEnabled *bool     `json:"email_enabled"`
	PushEnabled  *bool     `json:"push_enabled"`
	MutedTypes   *[]string `json:"muted_types"`
}

func UpdateSettings(ctx context.Context, userID string, in SettingsInput) (Settings, error) {
	s, err := GetSettings(ctx, userID)
	if err != nil {
		return Settings{}, err
	}

	if in.EmailEnabled != nil {
		s.EmailEnabled = *in.EmailEnabled
	}
	if in.PushEnabled != nil {
		s.PushEnabled = *in.PushEnabled
	}
	if in.MutedTypes != nil {
		muted := pq.StringArray{}
		seen := map[Type]bool{}
		for _, raw := range *in.MutedTypes {
			t := Type(strings.TrimSpace(raw))
			if !t.IsValid() {
				return Settings{}, apperr.Validation("unknown notification type \"" + raw + "\"")
			}
			if !seen[t] {
				seen[t] = true
				muted = append(muted, string(t))
			}
		}
		s.MutedTypes = muted
	}
	s.UpdatedAt = time.Now()

	err = database.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "email_enabled", "push_enabled", "muted_types"}),
	}).Create(&s).Error
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}

type PushInput struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

// RegisterPush stores a browser subscription; an existing endpoint moves to userID.
func RegisterPush(ctx context.Context, userID string, in PushInput) (*PushSubscription, error) {
	u, err := url.Parse(in.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, apperr.Validation("push endpoint must be an https URL")
	}
	if in.Keys.P256dh == "" || in.Keys.Auth == "" {
		return nil, apperr.Validation("push keys are required")
	}

	sub := PushSubscription{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		UserID:    userID,
		Endpoint:  in.Endpoint,
		P256dh:    in.Keys.P256dh,
		Auth:      in.Keys.Auth,
	}
	err = database.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func UnregisterPush(ctx context.Context, userID, endpoint string) error {
	res := database.DB.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&PushSubscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("push subscription")
	}
	return nil
}
