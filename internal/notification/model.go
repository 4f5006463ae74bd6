package notification

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeApplicationReceived  Type = "application_received"
	TypeApplicationAccepted  Type = "application_accepted"
	TypeApplicationRejected  Type = "application_rejected"
	TypeApplicationWithdrawn Type = "application_withdrawn"
	TypeNewMessage           Type = "new_message"
	TypePostClosed           Type = "post_closed"
	TypePaymentCompleted     Type = "payment_completed"
	TypeSystem               Type = "system"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeApplicationReceived, TypeApplicationAccepted, TypeApplicationRejected,
		TypeApplicationWithdrawn, TypeNewMessage, TypePostClosed, TypePaymentCompleted, TypeSystem:
		return true
	default:
		return false
	}
}

type Notification struct {
	ID        string         `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time      `json:"created_at"`
	UserID    string         `json:"user_id"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      datatypes.JSON `json:"data"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at"`
}

type Settings struct {
	UserID       string         `json:"user_id" gorm:"primaryKey;type:uuid"`
	UpdatedAt    time.Time      `json:"updated_at"`
	EmailEnabled bool           `json:"email_enabled"`
	PushEnabled  bool           `json:"push_enabled"`
	MutedTypes   pq.StringArray `json:"muted_types" gorm:"type:text[]"`
}

func (Settings) TableName() string {
	return "notification_settings"
}

func DefaultSettings(userID string) Settings {
	return Settings{UserID: userID, EmailEnabled: true, PushEnabled: true, MutedTypes: pq.StringArray{}}
}

func (s Settings) Muted(t Type) bool {
	for _, m := range s.MutedTypes {
		if Type(m) == t {
			return true
		}
	}
	return false
}

type PushSubscription struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint" gorm:"uniqueIndex"`
	P256dh    string    `json:"p256dh" gorm:"column:p256dh"`
	Auth      string    `json:"auth"`
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Delivery is one outbound send of a notification over a channel.
type Delivery struct {
	ID             string         `gorm:"primaryKey;type:uuid"`
	CreatedAt      time.Time
	NotificationID string
	UserID         string
	Channel        Channel
	Status         DeliveryStatus
	Attempts       int
	LastError      string
	NextAttemptAt  time.Time
}

func (Delivery) TableName() string {
	return "notification_deliveries"
}
