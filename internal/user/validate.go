package user

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	vrchatIDPattern = regexp.MustCompile(`^usr_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	discordPattern  = regexp.MustCompile(`^(?:[a-z0-9_.]{2,32}|[0-9]{17,20})$`)
	twitterPattern  = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)
)

const (
	MinPasswordLength = 8
	MaxDisplayName    = 50
	MaxBio            = 500
)

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperr.Validation("username must be 3-20 letters, digits or underscores")
	}
	return nil
}

func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email is invalid")
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperr.Validation("password must be at least 8 characters")
	}
	return nil
}

// ValidateProfile checks the fields present in in and normalizes them in place.
func ValidateProfile(in *UpdateProfileInput) error {
	if in.Username != nil {
		*in.Username = strings.TrimSpace(*in.Username)
		if err := ValidateUsername(*in.Username); err != nil {
			return err
		}
	}
	if in.DisplayName != nil {
		*in.DisplayName = strings.TrimSpace(*in.DisplayName)
		n := utf8.RuneCountInString(*in.DisplayName)
		if n < 1 || n > MaxDisplayName {
			return apperr.Validation("display name must be 1-50 characters")
		}
	}
	if in.Bio != nil && utf8.RuneCountInString(*in.Bio) > MaxBio {
		return apperr.Validation("bio must be at most 500 characters")
	}
	if in.VRChatID != nil {
		*in.VRChatID = strings.TrimSpace(*in.VRChatID)
		if *in.VRChatID != "" && !vrchatIDPattern.MatchString(*in.VRChatID) {
			return apperr.Validation("vrchat id must look like usr_xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx")
		}
	}
	if in.DiscordID != nil {
		*in.DiscordID = strings.TrimSpace(*in.DiscordID)
		if *in.DiscordID != "" && !discordPattern.MatchString(*in.DiscordID) {
			return apperr.Validation("discord id is invalid")
		}
	}
	if in.TwitterID != nil {
		*in.TwitterID = strings.TrimSpace(*in.TwitterID)
		if *in.TwitterID != "" {
			if !twitterPattern.MatchString(*in.TwitterID) {
				return apperr.Validation("twitter handle is invalid")
			}
			*in.TwitterID = strings.TrimPrefix(*in.TwitterID, "@")
		}
	}
	return nil
}
