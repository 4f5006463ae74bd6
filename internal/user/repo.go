package user

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

func ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := database.DB.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := database.DB.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	if err := database.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &u, nil
}

func GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := database.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &u, nil
}

func Create(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = permission.RoleUser
	}
	return database.DB.WithContext(ctx).Create(u).Error
}

// RoleOf resolves the role used for permission checks. Unknown users are guests.
func RoleOf(ctx context.Context, userID string) (permission.Role, error) {
	if userID == "" {
		return permission.RoleGuest, nil
	}

	var row struct {
		Role     permission.Role
		IsBanned bool
	}
	err := database.DB.WithContext(ctx).Model(&User{}).
		Select("role", "is_banned").
		Where("id = ?", userID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return permission.RoleGuest, nil
		}
		return permission.RoleGuest, err
	}
	return User{Role: row.Role, IsBanned: row.IsBanned}.EffectiveRole(), nil
}

// UpdateProfile applies the validated fields of in and returns the updated user.
func UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput, avatarURL string) (*User, error) {
	if err := ValidateProfile(&in); err != nil {
		return nil, err
	}

	current, err := GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Username != nil && *in.Username != current.Username {
		taken, err := ExistsByUsername(ctx, *in.Username)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.New(apperr.CodeAlreadyExists, "username is already taken")
		}
		updates["username"] = *in.Username
	}
	if in.DisplayName != nil {
		updates["display_name"] = *in.DisplayName
	}
	if in.Bio != nil {
		updates["bio"] = *in.Bio
	}
	if in.VRChatID != nil {
		updates["vrchat_id"] = *in.VRChatID
	}
	if in.DiscordID != nil {
		updates["discord_id"] = *in.DiscordID
	}
	if in.TwitterID != nil {
		updates["twitter_id"] = *in.TwitterID
	}
	if avatarURL != "" {
		updates["avatar_url"] = avatarURL
	}
	if len(updates) == 0 {
		return current, nil
	}

	if err := database.DB.WithContext(ctx).Model(current).Updates(updates).Error; err != nil {
		return nil, err
	}
	return GetByID(ctx, userID)
}
