package message

import (
	"time"

	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

// Message belongs to the thread of one application.
type Message struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt     time.Time  `json:"created_at"`
	ApplicationID string     `json:"application_id"`
	SenderID      string     `json:"sender_id"`
	ReceiverID    string     `json:"receiver_id"`
	Content       string     `json:"content"`
	IsRead        bool       `json:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

// Conversation summarizes a thread for the inbox.
type Conversation struct {
	ApplicationID     string           `json:"application_id"`
	PostID            string           `json:"post_id"`
	PostTitle         string           `json:"post_title"`
	ApplicationStatus string           `json:"application_status"`
	OtherUser         *user.PublicUser `json:"other_user,omitempty"`
	LastMessage       *Message         `json:"last_message,omitempty"`
	UnreadCount       int64            `json:"unread_count"`
}

type SendInput struct {
	Content string `json:"content" binding:"required"`
}
