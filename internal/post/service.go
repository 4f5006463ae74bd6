package post

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/category"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/events"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/notification"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/storage"
	"github.com/tanakadamon1/castchat-sub000/internal/tag"
)

var (
	notify = notification.Notify
	now    = time.Now
)

// Load fetches the bare post row.
func Load(ctx context.Context, id string) (*Post, error) {
	var p Post
	if err := database.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("post")
		}
		return nil, err
	}
	return &p, nil
}

func Create(ctx context.Context, actor permission.Actor, in Input) (*Post, error) {
	if !actor.Can(permission.PostCreate) {
		return nil, apperr.Forbidden("you cannot create posts")
	}
	if err := validateInput(&in, nil, now()); err != nil {
		return nil, err
	}

	p := Post{
		ID:              uuid.New().String(),
		CreatedAt:       now(),
		UpdatedAt:       now(),
		UserID:          actor.UserID,
		CategoryID:      in.CategoryID,
		Title:           *in.Title,
		Description:     *in.Description,
		EventDate:       in.EventDate,
		Deadline:        in.Deadline,
		MaxParticipants: 1,
		Platforms:       pq.StringArray{},
		Languages:       pq.StringArray{},
		Status:          StatusOpen,
		Tags:            []string{},
		Images:          []Image{},
	}
	if in.Requirements != nil {
		p.Requirements = *in.Requirements
	}
	if in.MaxParticipants != nil {
		p.MaxParticipants = *in.MaxParticipants
	}
	if in.Platforms != nil {
		p.Platforms = *in.Platforms
	}
	if in.Languages != nil {
		p.Languages = *in.Languages
	}
	if in.Status != nil {
		p.Status = *in.Status
	}

	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.CategoryID != nil {
			if err := category.EnsureActive(ctx, tx, *p.CategoryID); err != nil {
				return err
			}
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		if in.Tags != nil {
			p.Tags = *in.Tags
			return tag.AttachToPost(ctx, tx, p.ID, *in.Tags)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logs.LogJSON("INFO", "Post created", map[string]interface{}{
		"postID": p.ID,
		"userID": actor.UserID,
		"status": p.Status,
	})
	return &p, nil
}

func Update(ctx context.Context, actor permission.Actor, id string, in Input) (*Post, error) {
	current, err := Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(current.UserID, permission.PostUpdateOwn, permission.PostUpdateAny) {
		return nil, apperr.Forbidden("you cannot edit this post")
	}
	if err := validateInput(&in, current, now()); err != nil {
		return nil, err
	}
	if in.Status != nil && current.Status != StatusDraft && current.Status != StatusOpen {
		return nil, apperr.Validation("only draft or open posts can change status here")
	}

	updates := map[string]interface{}{"updated_at": now()}
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Requirements != nil {
		updates["requirements"] = *in.Requirements
	}
	if in.CategoryID != nil {
		updates["category_id"] = *in.CategoryID
	}
	if in.EventDate != nil {
		updates["event_date"] = *in.EventDate
	}
	if in.Deadline != nil {
		updates["deadline"] = *in.Deadline
	}
	if in.MaxParticipants != nil {
		updates["max_participants"] = *in.MaxParticipants
	}
	if in.Platforms != nil {
		updates["platforms"] = pq.StringArray(*in.Platforms)
	}
	if in.Languages != nil {
		updates["languages"] = pq.StringArray(*in.Languages)
	}
	if in.Status != nil {
		updates["status"] = *in.Status
	}

	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.CategoryID != nil {
			if err := category.EnsureActive(ctx, tx, *in.CategoryID); err != nil {
				return err
			}
		}
		if err := tx.Model(&Post{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if in.Tags != nil {
			return tag.AttachToPost(ctx, tx, id, *in.Tags)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Load(ctx, id)
}

// Delete removes the post and then its S3 images, best effort.
func Delete(ctx context.Context, actor permission.Actor, id string) error {
	p, err := Load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(p.UserID, permission.PostDeleteOwn, permission.PostDeleteAny) {
		return apperr.Forbidden("you cannot delete this post")
	}

	var keys []string
	if err := database.DB.WithContext(ctx).Model(&Image{}).Where("post_id = ?", id).Pluck("storage_key", &keys).Error; err != nil {
		return err
	}

	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tag.ReleaseForPost(ctx, tx, id); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Post{}).Error
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := storage.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
			logs.LogJSON("WARN", "Failed to delete post image", map[string]interface{}{
				"postID": id,
				"key":    key,
				"error":  err.Error(),
			})
		}
	}

	logs.LogJSON("INFO", "Post deleted", map[string]interface{}{
		"postID": id,
		"userID": actor.UserID,
	})
	return nil
}

func canSeeDraft(actor permission.Actor, p *Post) bool {
	return actor.CanModify(p.UserID, permission.PostUpdateOwn, permission.PostUpdateAny)
}

// VisibleTo reports whether actor may see p. Drafts are limited to their
// owner and moderators.
func VisibleTo(actor permission.Actor, p *Post) bool {
	if !actor.Can(permission.PostView) {
		return false
	}
	return p.Status != StatusDraft || canSeeDraft(actor, p)
}

// Get returns the hydrated post. Views by anyone but the owner are counted.
func Get(ctx context.Context, actor permission.Actor, id string) (*Post, error) {
	p, err := Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !VisibleTo(actor, p) {
		return nil, apperr.NotFound("post")
	}

	if actor.UserID != p.UserID {
		err := database.DB.WithContext(ctx).Model(&Post{}).Where("id = ?", id).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
		if err != nil {
			logs.LogJSON("WARN", "Failed to count post view", map[string]interface{}{
				"postID": id,
				"error":  err.Error(),
			})
		} else {
			p.ViewCount++
		}
	}

	posts := []Post{*p}
	if err := hydrate(ctx, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// Close stops an open post from taking applications and tells pending applicants.
func Close(ctx context.Context, actor permission.Actor, id string) (*Post, error) {
	p, err := Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(p.UserID, permission.PostUpdateOwn, permission.PostUpdateAny) {
		return nil, apperr.Forbidden("you cannot close this post")
	}
	if p.Status != StatusOpen {
		return nil, apperr.Validation("only open posts can be closed")
	}

	if err := closePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func closePost(ctx context.Context, p *Post) error {
	res := database.DB.WithContext(ctx).Model(&Post{}).
		Where("id = ? AND status = ?", p.ID, StatusOpen).
		Updates(map[string]interface{}{"status": StatusClosed, "updated_at": now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeConflict, "the post is no longer open")
	}
	p.Status = StatusClosed

	var applicants []string
	err := database.DB.WithContext(ctx).Table("applications").
		Where("post_id = ? AND status = ?", p.ID, "pending").
		Pluck("applicant_id", &applicants).Error
	if err != nil {
		logs.LogJSON("WARN", "Failed to load pending applicants", map[string]interface{}{
			"postID": p.ID,
			"error":  err.Error(),
		})
	}
	for _, applicantID := range applicants {
		notify(ctx, applicantID, notification.TypePostClosed,
			"募集が締め切られました",
			"応募中の募集「"+p.Title+"」が締め切られました。",
			map[string]interface{}{"post_id": p.ID})
	}

	events.Publish(ctx, events.Event{
		Type:     events.PostClosed,
		UserIDs:  append([]string{p.UserID}, applicants...),
		EntityID: p.ID,
	})
	return nil
}

func Reopen(ctx context.Context, actor permission.Actor, id string) (*Post, error) {
	p, err := Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(p.UserID, permission.PostUpdateOwn, permission.PostUpdateAny) {
		return nil, apperr.Forbidden("you cannot reopen this post")
	}
	if p.Status != StatusClosed {
		return nil, apperr.Validation("only closed posts can be reopened")
	}
	if p.IsExpired(now()) {
		return nil, apperr.Validation("move the deadline into the future before reopening")
	}

	err = database.DB.WithContext(ctx).Model(&Post{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": StatusOpen, "updated_at": now()}).Error
	if err != nil {
		return nil, err
	}
	p.Status = StatusOpen
	return p, nil
}

// ListByUser returns a user's public posts (no drafts), newest first.
func ListByUser(ctx context.Context, userID string, page httpx.Page) ([]Post, int64, error) {
	return listWhere(ctx, page, "user_id = ? AND status <> ?", userID, StatusDraft)
}

// ListMine returns every post of the caller including drafts.
func ListMine(ctx context.Context, actor permission.Actor, page httpx.Page) ([]Post, int64, error) {
	if !actor.Can(permission.PostCreate) {
		return nil, 0, apperr.Unauthorized("please sign in")
	}
	return listWhere(ctx, page, "user_id = ?", actor.UserID)
}

// ListByIDs returns hydrated posts in the order of ids; missing ids are skipped.
func ListByIDs(ctx context.Context, ids []string) ([]Post, error) {
	if len(ids) == 0 {
		return []Post{}, nil
	}
	var found []Post
	if err := database.DB.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]Post, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	posts := make([]Post, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			posts = append(posts, p)
		}
	}
	if err := hydrate(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func listWhere(ctx context.Context, page httpx.Page, query string, args ...interface{}) ([]Post, int64, error) {
	q := database.DB.WithContext(ctx).Model(&Post{}).Where(query, args...)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []Post
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&posts).Error; err != nil {
		return nil, 0, err
	}
	if err := hydrate(ctx, posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// ExpireOverdue closes open posts whose deadline has passed.
func ExpireOverdue(ctx context.Context) (int, error) {
	var overdue []Post
	err := database.DB.WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline <= ?", StatusOpen, now()).
		Find(&overdue).Error
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range overdue {
		if err := closePost(ctx, &overdue[i]); err != nil {
			if apperr.Is(err, apperr.CodeConflict) {
				continue
			}
			return closed, err
		}
		closed++
	}
	return closed, nil
}
