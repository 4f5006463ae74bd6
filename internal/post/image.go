package post

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/storage"
)

func loadOwned(ctx context.Context, actor permission.Actor, postID string) (*Post, error) {
	p, err := Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(p.UserID, permission.PostUpdateOwn, permission.PostUpdateAny) {
		return nil, apperr.Forbidden("you cannot edit this post")
	}
	return p, nil
}

// UploadImage stores an image for the post; a post holds at most MaxImages.
func UploadImage(ctx context.Context, actor permission.Actor, postID, filename string, size int64, body io.Reader) (*Image, error) {
	if _, err := loadOwned(ctx, actor, postID); err != nil {
		return nil, err
	}

	contentType, ok := storage.ImageContentType(filename)
	if !ok {
		return nil, apperr.Validation("images must be jpg, jpeg, png, gif or webp")
	}
	if size > storage.MaxImageSize {
		return nil, apperr.Validation("images must be at most 5MB")
	}
	body, err := storage.SniffImage(body, contentType)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "the file is not a valid "+strings.TrimPrefix(contentType, "image/")+" image")
	}

	var count int64
	if err := database.DB.WithContext(ctx).Model(&Image{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count >= MaxImages {
		return nil, apperr.Validation(fmt.Sprintf("a post can have at most %d images", MaxImages))
	}

	imageID := uuid.New().String()
	key := fmt.Sprintf("posts/%s/%s%s", postID, imageID, strings.ToLower(filepath.Ext(filename)))
	url, err := storage.Upload(ctx, body, key, contentType)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, apperr.Wrap(err, apperr.CodeStorage, "image storage is not available")
		}
		return nil, err
	}

	img := Image{
		ID:         imageID,
		CreatedAt:  time.Now(),
		PostID:     postID,
		URL:        url,
		StorageKey: key,
		Position:   int(count),
	}
	if err := database.DB.WithContext(ctx).Create(&img).Error; err != nil {
		// Do not leave an orphaned object behind.
		_ = storage.Delete(ctx, key)
		return nil, err
	}
	img.URL = imageURL(ctx, img)
	return &img, nil
}

func DeleteImage(ctx context.Context, actor permission.Actor, postID, imageID string) error {
	if _, err := loadOwned(ctx, actor, postID); err != nil {
		return err
	}

	var img Image
	if err := database.DB.WithContext(ctx).Where("id = ? AND post_id = ?", imageID, postID).Take(&img).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("image")
		}
		return err
	}
	if err := database.DB.WithContext(ctx).Delete(&img).Error; err != nil {
		return err
	}

	if err := storage.Delete(ctx, img.StorageKey); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		logs.LogJSON("WARN", "Failed to delete image object", map[string]interface{}{
			"postID": postID,
			"key":    img.StorageKey,
			"error":  err.Error(),
		})
	}
	return nil
}

// ReorderImages sets positions from the order of ids, which must list every image once.
func ReorderImages(ctx context.Context, actor permission.Actor, postID string, ids []string) error {
	if _, err := loadOwned(ctx, actor, postID); err != nil {
		return err
	}

	var existing []string
	if err := database.DB.WithContext(ctx).Model(&Image{}).Where("post_id = ?", postID).Pluck("id", &existing).Error; err != nil {
		return err
	}
	if len(existing) != len(ids) {
		return apperr.Validation("the new order must list every image of the post")
	}
	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}
	for _, id := range ids {
		if !known[id] {
			return apperr.Validation("the new order must list every image of the post")
		}
		delete(known, id)
	}

	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			if err := tx.Model(&Image{}).Where("id = ?", id).UpdateColumn("position", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
