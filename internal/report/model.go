package report

import (
	"time"

	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

type TargetType string

const (
	TargetPost    TargetType = "post"
	TargetUser    TargetType = "user"
	TargetMessage TargetType = "message"
)

func (t TargetType) IsValid() bool {
	switch t {
	case TargetPost, TargetUser, TargetMessage:
		return true
	default:
		return false
	}
}

type Reason string

const (
	ReasonSpam          Reason = "spam"
	ReasonInappropriate Reason = "inappropriate_content"
	ReasonHarassment    Reason = "harassment"
	ReasonImpersonation Reason = "impersonation"
	ReasonScam          Reason = "scam"
	ReasonOther         Reason = "other"
)

func (r Reason) IsValid() bool {
	switch r {
	case ReasonSpam, ReasonInappropriate, ReasonHarassment, ReasonImpersonation, ReasonScam, ReasonOther:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusReviewed Status = "reviewed"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusResolved, StatusRejected:
		return true
	default:
		return false
	}
}

// closed statuses carry a resolution time.
func (s Status) closed() bool {
	return s == StatusResolved || s == StatusRejected
}

type Report struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ReporterID    string     `json:"reporter_id"`
	TargetType    TargetType `json:"target_type"`
	TargetID      string     `json:"target_id"`
	Reason        Reason     `json:"reason"`
	Description   string     `json:"description"`
	Status        Status     `json:"status"`
	ModeratorID   *string    `json:"moderator_id,omitempty"`
	ModeratorNote string     `json:"moderator_note"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`

	Reporter *user.PublicUser `json:"reporter,omitempty" gorm:"-"`
}

type CreateInput struct {
	TargetType  TargetType `json:"target_type" binding:"required"`
	TargetID    string     `json:"target_id" binding:"required"`
	Reason      Reason     `json:"reason" binding:"required"`
	Description string     `json:"description"`
}

type ResolveInput struct {
	Status Status `json:"status" binding:"required"`
	Note   string `json:"note"`
}

type Filter struct {
	Status     Status
	TargetType TargetType
	Reason     Reason
}

type Stats struct {
	ByStatus    map[Status]int64     `json:"by_status"`
	ByType      map[TargetType]int64 `json:"by_type"`
	ByReason    map[Reason]int64     `json:"by_reason"`
	Last24Hours int64                `json:"last_24_hours"`
}
