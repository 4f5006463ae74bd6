package user

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/storage"
)

// GetMe GET /api/me
func GetMe(c *gin.Context) {
	actor := httpx.ActorFrom(c)

	u, err := GetByID(c.Request.Context(), actor.UserID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        u,
		"permissions": permission.For(u.EffectiveRole()),
	})
}

// UpdateMe PATCH /api/me (JSON or multipart with an optional "avatar" file)
func UpdateMe(c *gin.Context) {
	route := c.FullPath()
	actor := httpx.ActorFrom(c)
	if !actor.Can(permission.ProfileUpdate) {
		apperr.Respond(c, apperr.Unauthorized("please sign in"))
		return
	}

	var input UpdateProfileInput
	if err := c.ShouldBind(&input); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid profile data"))
		return
	}

	var avatarURL string
	var oldAvatar string
	if file, header, err := c.Request.FormFile("avatar"); err == nil {
		defer file.Close()

		contentType, ok := storage.ImageContentType(header.Filename)
		if !ok {
			apperr.Respond(c, apperr.Validation("avatar must be a jpg, png, gif or webp image"))
			return
		}
		if header.Size > storage.MaxImageSize {
			apperr.Respond(c, apperr.Validation("avatar must be at most 5MB"))
			return
		}
		body, err := storage.SniffImage(file, contentType)
		if err != nil {
			apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "avatar content does not match its file type"))
			return
		}

		if current, err := GetByID(c.Request.Context(), actor.UserID); err == nil {
			oldAvatar = current.AvatarURL
		}

		key := fmt.Sprintf("avatars/%s/%d%s", actor.UserID, time.Now().Unix(), strings.ToLower(filepath.Ext(header.Filename)))
		avatarURL, err = storage.Upload(c.Request.Context(), body, key, contentType)
		if err != nil {
			apperr.Respond(c, apperr.Wrap(err, apperr.CodeStorage, "avatar upload failed"))
			return
		}
	}

	u, err := UpdateProfile(c.Request.Context(), actor.UserID, input, avatarURL)
	if err != nil {
		if avatarURL != "" {
			_ = storage.Delete(c.Request.Context(), storage.KeyFromURL(avatarURL))
		}
		apperr.Respond(c, err)
		return
	}

	if avatarURL != "" && oldAvatar != "" {
		if err := storage.Delete(c.Request.Context(), storage.KeyFromURL(oldAvatar)); err != nil {
			logs.LogJSON("WARN", "Old avatar could not be deleted", map[string]interface{}{
				"error":  err.Error(),
				"route":  route,
				"userID": actor.UserID,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"user": u})
}
