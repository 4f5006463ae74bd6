package user

import (
	"time"

	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

type User struct {
	ID          string          `json:"id" gorm:"primaryKey;type:uuid"` // UUID from auth.users
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Username    string          `json:"username" gorm:"uniqueIndex"`
	DisplayName string          `json:"display_name"`
	Email       string          `json:"email,omitempty" gorm:"uniqueIndex"`
	AvatarURL   string          `json:"avatar_url"`
	Bio         string          `json:"bio"`
	VRChatID    string          `json:"vrchat_id" gorm:"column:vrchat_id"`
	DiscordID   string          `json:"discord_id"`
	TwitterID   string          `json:"twitter_id"`
	Role        permission.Role `json:"role"`
	Coins       int             `json:"coins"`
	IsBanned    bool            `json:"is_banned"`
}

// PublicUser is what other users see.
type PublicUser struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Bio         string    `json:"bio"`
	VRChatID    string    `json:"vrchat_id,omitempty"`
	DiscordID   string    `json:"discord_id,omitempty"`
	TwitterID   string    `json:"twitter_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		VRChatID:    u.VRChatID,
		DiscordID:   u.DiscordID,
		TwitterID:   u.TwitterID,
		CreatedAt:   u.CreatedAt,
	}
}

// EffectiveRole is the role used for permission checks; banned users act as guests.
func (u User) EffectiveRole() permission.Role {
	if u.IsBanned || !u.Role.IsValid() {
		return permission.RoleGuest
	}
	return u.Role
}

// UpdateProfileInput holds optional profile fields; nil means unchanged.
type UpdateProfileInput struct {
	Username    *string `json:"username" form:"username"`
	DisplayName *string `json:"display_name" form:"display_name"`
	Bio         *string `json:"bio" form:"bio"`
	VRChatID    *string `json:"vrchat_id" form:"vrchat_id"`
	DiscordID   *string `json:"discord_id" form:"discord_id"`
	TwitterID   *string `json:"twitter_id" form:"twitter_id"`
}
