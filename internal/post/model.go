package post

import (
	"time"

	"github.com/lib/pq"

	"github.com/tanakadamon1/castchat-sub000/internal/category"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

type Post struct {
	ID               string         `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	UserID           string         `json:"user_id"`
	CategoryID       *string        `json:"category_id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Requirements     string         `json:"requirements"`
	EventDate        *time.Time     `json:"event_date"`
	Deadline         *time.Time     `json:"deadline"`
	MaxParticipants  int            `json:"max_participants"`
	Platforms        pq.StringArray `json:"platforms" gorm:"type:text[]"`
	Languages        pq.StringArray `json:"languages" gorm:"type:text[]"`
	Status           Status         `json:"status"`
	ViewCount        int            `json:"view_count"`
	ApplicationCount int            `json:"application_count"`
	IsFeatured       bool           `json:"is_featured"`

	Owner    *user.PublicUser   `json:"owner,omitempty" gorm:"-"`
	Category *category.Category `json:"category,omitempty" gorm:"-"`
	Tags     []string           `json:"tags" gorm:"-"`
	Images   []Image            `json:"images" gorm:"-"`
}

// Image is stored under posts/<post_id>/ in S3.
type Image struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt  time.Time `json:"created_at"`
	PostID     string    `json:"post_id"`
	URL        string    `json:"url"`
	StorageKey string    `json:"-"`
	Position   int       `json:"position"`
}

func (Image) TableName() string {
	return "post_images"
}

// IsExpired reports whether the application deadline has passed.
func (p *Post) IsExpired(now time.Time) bool {
	return p.Deadline != nil && !p.Deadline.After(now)
}

// Input carries create and update fields; nil means unchanged.
type Input struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Requirements    *string    `json:"requirements"`
	CategoryID      *string    `json:"category_id"`
	EventDate       *time.Time `json:"event_date"`
	Deadline        *time.Time `json:"deadline"`
	MaxParticipants *int       `json:"max_participants"`
	Platforms       *[]string  `json:"platforms"`
	Languages       *[]string  `json:"languages"`
	Tags            *[]string  `json:"tags"`
	Status          *Status    `json:"status"`
}

type SearchParams struct {
	Query       string
	Category    string
	Tags        []string
	Platform    string
	Language    string
	Status      Status
	HasDeadline bool
	Sort        string
	Page        int
	Limit       int
}

type SearchResult struct {
	Posts []Post `json:"posts"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}
