package post

import (
	"context"
	"time"

	"github.com/tanakadamon1/castchat-sub000/internal/category"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/storage"
	"github.com/tanakadamon1/castchat-sub000/internal/tag"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

const imageURLTTL = time.Hour

// hydrate fills owner, category, tags and images with one query per relation.
func hydrate(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}

	postIDs := make([]string, 0, len(posts))
	userIDs := make([]string, 0, len(posts))
	var categoryIDs []string
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		userIDs = append(userIDs, p.UserID)
		if p.CategoryID != nil {
			categoryIDs = append(categoryIDs, *p.CategoryID)
		}
	}

	var owners []user.User
	if err := database.DB.WithContext(ctx).Where("id IN ?", userIDs).Find(&owners).Error; err != nil {
		return err
	}
	ownerByID := make(map[string]user.PublicUser, len(owners))
	for _, u := range owners {
		ownerByID[u.ID] = u.Public()
	}

	categoryByID := map[string]category.Category{}
	if len(categoryIDs) > 0 {
		var cats []category.Category
		if err := database.DB.WithContext(ctx).Where("id IN ?", categoryIDs).Find(&cats).Error; err != nil {
			return err
		}
		for _, c := range cats {
			categoryByID[c.ID] = c
		}
	}

	var images []Image
	if err := database.DB.WithContext(ctx).Where("post_id IN ?", postIDs).Order("position").Find(&images).Error; err != nil {
		return err
	}
	imagesByPost := map[string][]Image{}
	for _, img := range images {
		img.URL = imageURL(ctx, img)
		imagesByPost[img.PostID] = append(imagesByPost[img.PostID], img)
	}

	tagsByPost, err := tag.NamesForPosts(ctx, postIDs)
	if err != nil {
		return err
	}

	for i := range posts {
		p := &posts[i]
		if owner, ok := ownerByID[p.UserID]; ok {
			p.Owner = &owner
		}
		if p.CategoryID != nil {
			if c, ok := categoryByID[*p.CategoryID]; ok {
				p.Category = &c
			}
		}
		p.Images = imagesByPost[p.ID]
		if p.Images == nil {
			p.Images = []Image{}
		}
		p.Tags = tagsByPost[p.ID]
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}
	return nil
}

// imageURL presigns the image when the bucket is private.
func imageURL(ctx context.Context, img Image) string {
	if img.StorageKey == "" || !storage.Private() {
		return img.URL
	}
	url, err := storage.ReadURL(ctx, img.StorageKey, imageURLTTL)
	if err != nil {
		logs.LogJSON("WARN", "Failed to presign image", map[string]interface{}{
			"postID": img.PostID,
			"key":    img.StorageKey,
			"error":  err.Error(),
		})
		return img.URL
	}
	return url
}
