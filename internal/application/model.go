package application

import (
	"time"

	"github.com/tanakadamon1/castchat-sub000/internal/post"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	default:
		return false
	}
}

type Application struct {
	ID          string     `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PostID      string     `json:"post_id"`
	ApplicantID string     `json:"applicant_id"`
	Message     string     `json:"message"`
	Status      Status     `json:"status"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewNote  string     `json:"review_note"`

	Applicant *user.PublicUser `json:"applicant,omitempty" gorm:"-"`
	Post      *post.Post       `json:"post,omitempty" gorm:"-"`
}

// Eligibility explains whether a user may apply to a post right now.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}
