// Package application handles applying to posts and reviewing applicants.
package application

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/events"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/notification"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/post"
	"github.com/tanakadamon1/castchat-sub000/internal/ratelimit"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

const (
	minMessage = 10
	maxMessage = 1000
)

var (
	notify = notification.Notify
	now    = time.Now

	// ApplyLimit caps applications per user per ApplyWindow.
	ApplyLimit  int64 = 10
	ApplyWindow       = time.Hour
)

// Load fetches the bare application row.
func Load(ctx context.Context, id string) (*Application, error) {
	var a Application
	if err := database.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("application")
		}
		return nil, err
	}
	return &a, nil
}

// eligibility runs the apply checks in order against db. With lock the
// post row is held FOR UPDATE until the surrounding transaction ends.
func eligibility(ctx context.Context, db *gorm.DB, postID, applicantID string, lock bool) (*post.Post, error) {
	q := db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var p post.Post
	if err := q.Where("id = ?", postID).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("post")
		}
		return nil, err
	}

	if p.Status != post.StatusOpen {
		return nil, apperr.Validation("this post is not accepting applications")
	}
	if p.IsExpired(now()) {
		return nil, apperr.Validation("the application deadline has passed")
	}
	if p.UserID == applicantID {
		return nil, apperr.Validation("you cannot apply to your own post")
	}

	var live int64
	err := db.WithContext(ctx).Model(&Application{}).
		Where("post_id = ? AND applicant_id = ? AND status <> ?", postID, applicantID, StatusWithdrawn).
		Count(&live).Error
	if err != nil {
		return nil, err
	}
	if live > 0 {
		return nil, apperr.New(apperr.CodeAlreadyExists, "you have already applied to this post")
	}

	accepted, err := countAccepted(ctx, db, postID)
	if err != nil {
		return nil, err
	}
	if accepted >= int64(p.MaxParticipants) {
		return nil, apperr.New(apperr.CodeConflict, "this post is already full")
	}
	return &p, nil
}

func countAccepted(ctx context.Context, db *gorm.DB, postID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&Application{}).
		Where("post_id = ? AND status = ?", postID, StatusAccepted).
		Count(&n).Error
	return n, err
}

// CheckEligibility reports whether actor could apply, without writing.
func CheckEligibility(ctx context.Context, actor permission.Actor, postID string) (*Eligibility, error) {
	if !actor.Can(permission.ApplicationCreate) {
		return &Eligibility{Eligible: false, Reason: "sign in to apply"}, nil
	}

	_, err := eligibility(ctx, database.DB, postID, actor.UserID, false)
	if err == nil {
		return &Eligibility{Eligible: true}, nil
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) && appErr.Code != apperr.CodeNotFound {
		return &Eligibility{Eligible: false, Reason: appErr.Message}, nil
	}
	return nil, err
}

func Apply(ctx context.Context, actor permission.Actor, postID, message string) (*Application, error) {
	if !actor.Can(permission.ApplicationCreate) {
		return nil, apperr.Forbidden("you cannot apply to posts")
	}
	message = strings.TrimSpace(message)
	if n := utf8.RuneCountInString(message); n < minMessage || n > maxMessage {
		return nil, apperr.Validation("message must be 10-1000 characters")
	}
	if err := ratelimit.Check(ctx, "apply", actor.UserID, ApplyLimit, ApplyWindow); err != nil {
		return nil, err
	}

	a := Application{
		ID:          uuid.New().String(),
		CreatedAt:   now(),
		UpdatedAt:   now(),
		PostID:      postID,
		ApplicantID: actor.UserID,
		Message:     message,
		Status:      StatusPending,
	}

	var p *post.Post
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = eligibility(ctx, tx, postID, actor.UserID, true); err != nil {
			return err
		}
		if err := tx.Create(&a).Error; err != nil {
			return err
		}
		return tx.Model(&post.Post{}).Where("id = ?", postID).
			UpdateColumn("application_count", gorm.Expr("application_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	logs.LogJSON("INFO", "Application created", map[string]interface{}{
		"applicationID": a.ID,
		"postID":        postID,
		"userID":        actor.UserID,
	})

	notify(ctx, p.UserID, notification.TypeApplicationReceived,
		"新しい応募があります",
		"募集「"+p.Title+"」に新しい応募がありました。",
		map[string]interface{}{"post_id": postID, "application_id": a.ID})
	events.Publish(ctx, events.Event{
		Type:     events.ApplicationCreated,
		UserIDs:  []string{p.UserID, actor.UserID},
		EntityID: a.ID,
		Data:     map[string]interface{}{"post_id": postID},
	})
	return &a, nil
}

// UpdateStatus applies a review or a withdrawal. The post owner moves
// pending to accepted or rejected; the applicant withdraws a pending or
// accepted application. Anything else is a validation error.
func UpdateStatus(ctx context.Context, actor permission.Actor, id string, status Status, note string) (*Application, error) {
	if !status.IsValid() {
		return nil, apperr.Validation("unknown application status")
	}
	if utf8.RuneCountInString(note) > maxMessage {
		return nil, apperr.Validation("note must be at most 1000 characters")
	}

	a, err := Load(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := post.Load(ctx, a.PostID)
	if err != nil {
		return nil, err
	}

	from := a.Status
	switch status {
	case StatusAccepted, StatusRejected:
		if actor.UserID != p.UserID || !actor.Can(permission.ApplicationReview) {
			return nil, apperr.Forbidden("only the post owner can review applications")
		}
		if from != StatusPending {
			return nil, apperr.Validation("only pending applications can be reviewed")
		}
	case StatusWithdrawn:
		if actor.UserID != a.ApplicantID || !actor.Can(permission.ApplicationWithdraw) {
			return nil, apperr.Forbidden("only the applicant can withdraw")
		}
		if from != StatusPending && from != StatusAccepted {
			return nil, apperr.Validation("this application can no longer be withdrawn")
		}
	default:
		return nil, apperr.Validation("applications cannot be moved back to pending")
	}

	updates := map[string]interface{}{"status": status, "updated_at": now()}
	if status != StatusWithdrawn {
		updates["reviewed_at"] = now()
		updates["review_note"] = strings.TrimSpace(note)
	}

	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if status == StatusAccepted {
			var locked post.Post
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", p.ID).Take(&locked).Error; err != nil {
				return err
			}
			accepted, err := countAccepted(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if accepted >= int64(locked.MaxParticipants) {
				return apperr.New(apperr.CodeConflict, "this post is already full")
			}
		}

		res := tx.Model(&Application{}).Where("id = ? AND status = ?", id, from).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.CodeConflict, "the application changed, please reload")
		}

		if status == StatusWithdrawn {
			return tx.Model(&post.Post{}).Where("id = ?", p.ID).
				UpdateColumn("application_count", gorm.Expr("GREATEST(application_count - 1, 0)")).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.Status = status
	if status != StatusWithdrawn {
		t := now()
		a.ReviewedAt = &t
		a.ReviewNote = strings.TrimSpace(note)
	}

	logs.LogJSON("INFO", "Application status changed", map[string]interface{}{
		"applicationID": id,
		"postID":        p.ID,
		"userID":        actor.UserID,
		"from":          from,
		"to":            status,
	})

	data := map[string]interface{}{"post_id": p.ID, "application_id": id}
	switch status {
	case StatusAccepted:
		notify(ctx, a.ApplicantID, notification.TypeApplicationAccepted,
			"応募が承認されました", "募集「"+p.Title+"」への応募が承認されました。", data)
	case StatusRejected:
		notify(ctx, a.ApplicantID, notification.TypeApplicationRejected,
			"応募結果のお知らせ", "募集「"+p.Title+"」への応募は見送りとなりました。", data)
	case StatusWithdrawn:
		notify(ctx, p.UserID, notification.TypeApplicationWithdrawn,
			"応募が取り下げられました", "募集「"+p.Title+"」への応募が取り下げられました。", data)
	}
	events.Publish(ctx, events.Event{
		Type:     events.ApplicationStatusChanged,
		UserIDs:  []string{p.UserID, a.ApplicantID},
		EntityID: id,
		Data:     map[string]interface{}{"from": string(from), "to": string(status)},
	})
	return a, nil
}

// ListForPost is for the post owner; status filters when non-empty.
func ListForPost(ctx context.Context, actor permission.Actor, postID string, status Status, page httpx.Page) ([]Application, int64, error) {
	p, err := post.Load(ctx, postID)
	if err != nil {
		return nil, 0, err
	}
	if actor.UserID != p.UserID || !actor.Can(permission.ApplicationReview) {
		return nil, 0, apperr.Forbidden("only the post owner can see its applications")
	}
	if status != "" && !status.IsValid() {
		return nil, 0, apperr.Validation("unknown application status")
	}

	q := database.DB.WithContext(ctx).Model(&Application{}).Where("post_id = ?", postID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	list := []Application{}
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	if err := attachApplicants(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListMine returns the caller's applications with their posts.
func ListMine(ctx context.Context, actor permission.Actor, status Status, page httpx.Page) ([]Application, int64, error) {
	if !actor.Can(permission.ApplicationViewOwn) {
		return nil, 0, apperr.Unauthorized("please sign in")
	}
	if status != "" && !status.IsValid() {
		return nil, 0, apperr.Validation("unknown application status")
	}

	q := database.DB.WithContext(ctx).Model(&Application{}).Where("applicant_id = ?", actor.UserID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	list := []Application{}
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	if err := attachPosts(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Get is limited to the applicant and the post owner.
func Get(ctx context.Context, actor permission.Actor, id string) (*Application, error) {
	a, err := Load(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := post.Load(ctx, a.PostID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != a.ApplicantID && actor.UserID != p.UserID {
		return nil, apperr.NotFound("application")
	}

	list := []Application{*a}
	if err := attachApplicants(ctx, list); err != nil {
		return nil, err
	}
	list[0].Post = p
	return &list[0], nil
}

// Participants returns the applicant and the post owner.
func Participants(ctx context.Context, id string) (*Application, string, error) {
	a, err := Load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	var ownerID string
	err = database.DB.WithContext(ctx).Model(&post.Post{}).Select("user_id").Where("id = ?", a.PostID).Scan(&ownerID).Error
	if err != nil {
		return nil, "", err
	}
	if ownerID == "" {
		return nil, "", apperr.NotFound("post")
	}
	return a, ownerID, nil
}

// Stats counts a post's applications by status for its owner.
func Stats(ctx context.Context, actor permission.Actor, postID string) (map[Status]int64, error) {
	p, err := post.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != p.UserID && !actor.Can(permission.StatsViewAdmin) {
		return nil, apperr.Forbidden("only the post owner can see application stats")
	}

	var rows []struct {
		Status Status
		Count  int64
	}
	err = database.DB.WithContext(ctx).Model(&Application{}).
		Select("status, count(*) AS count").
		Where("post_id = ?", postID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := map[Status]int64{StatusPending: 0, StatusAccepted: 0, StatusRejected: 0, StatusWithdrawn: 0}
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func attachApplicants(ctx context.Context, list []Application) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ApplicantID)
	}

	var users []user.User
	if err := database.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return err
	}
	byID := make(map[string]user.PublicUser, len(users))
	for _, u := range users {
		byID[u.ID] = u.Public()
	}
	for i := range list {
		if u, ok := byID[list[i].ApplicantID]; ok {
			list[i].Applicant = &u
		}
	}
	return nil
}

func attachPosts(ctx context.Context, list []Application) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	seen := map[string]bool{}
	for _, a := range list {
		if !seen[a.PostID] {
			seen[a.PostID] = true
			ids = append(ids, a.PostID)
		}
	}

	posts, err := post.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*post.Post, len(posts))
	for i := range posts {
		byID[posts[i].ID] = &posts[i]
	}
	for i := range list {
		list[i].Post = byID[list[i].PostID]
	}
	return nil
}
