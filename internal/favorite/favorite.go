// Package favorite lets users bookmark posts.
package favorite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/post"
)

type Favorite struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id"`
	PostID    string    `json:"post_id"`
}

func requireUser(actor permission.Actor) error {
	if !actor.Can(permission.FavoriteManage) {
		return apperr.Unauthorized("please sign in")
	}
	return nil
}

// Add bookmarks a post. Adding twice is not an error.
func Add(ctx context.Context, actor permission.Actor, postID string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	p, err := post.Load(ctx, postID)
	if err != nil {
		return err
	}
	if !post.VisibleTo(actor, p) {
		return apperr.NotFound("post")
	}

	f := Favorite{ID: uuid.New().String(), CreatedAt: time.Now(), UserID: actor.UserID, PostID: postID}
	return database.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "post_id"}}, DoNothing: true}).
		Create(&f).Error
}

// Remove deletes a bookmark if present.
func Remove(ctx context.Context, actor permission.Actor, postID string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	return database.DB.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", actor.UserID, postID).
		Delete(&Favorite{}).Error
}

func Check(ctx context.Context, actor permission.Actor, postID string) (bool, error) {
	if !actor.Can(permission.FavoriteManage) {
		return false, nil
	}
	var n int64
	err := database.DB.WithContext(ctx).Model(&Favorite{}).
		Where("user_id = ? AND post_id = ?", actor.UserID, postID).
		Count(&n).Error
	return n > 0, err
}

// List returns bookmarked posts, most recently saved first. Drafts of
// other users are skipped.
func List(ctx context.Context, actor permission.Actor, page httpx.Page) ([]post.Post, int64, error) {
	if err := requireUser(actor); err != nil {
		return nil, 0, err
	}

	q := database.DB.WithContext(ctx).Model(&Favorite{}).Where("user_id = ?", actor.UserID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ids []string
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Pluck("post_id", &ids).Error; err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []post.Post{}, total, nil
	}

	posts, err := post.ListByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	out := posts[:0]
	for i := range posts {
		if !post.VisibleTo(actor, &posts[i]) {
			continue
		}
		out = append(out, posts[i])
	}
	return out, total, nil
}
