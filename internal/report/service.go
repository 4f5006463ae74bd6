// Package report lets users flag posts, users and messages for moderators.
package report

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/message"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/post"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

const (
	maxDescription = 1000
	maxNote        = 1000
)

var now = time.Now

// targetVisible reports whether the target exists and the reporter can see it.
// Messages are only visible to their sender and receiver.
func targetVisible(ctx context.Context, reporterID string, t TargetType, id string) (bool, error) {
	var n int64
	q := database.DB.WithContext(ctx)
	var err error
	switch t {
	case TargetPost:
		err = q.Model(&post.Post{}).Where("id = ? AND status <> ?", id, post.StatusDraft).Count(&n).Error
	case TargetUser:
		err = q.Model(&user.User{}).Where("id = ?", id).Count(&n).Error
	case TargetMessage:
		err = q.Model(&message.Message{}).
			Where("id = ? AND (sender_id = ? OR receiver_id = ?)", id, reporterID, reporterID).
			Count(&n).Error
	}
	return n > 0, err
}

func Create(ctx context.Context, actor permission.Actor, in CreateInput) (*Report, error) {
	if !actor.Can(permission.ReportCreate) {
		return nil, apperr.Unauthorized("please sign in")
	}
	if !in.TargetType.IsValid() {
		return nil, apperr.Validation("unknown report target type")
	}
	if !in.Reason.IsValid() {
		return nil, apperr.Validation("unknown report reason")
	}
	in.Description = strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(in.Description) > maxDescription {
		return nil, apperr.Validation("description must be at most 1000 characters")
	}
	if in.TargetType == TargetUser && in.TargetID == actor.UserID {
		return nil, apperr.Validation("you cannot report yourself")
	}

	ok, err := targetVisible(ctx, actor.UserID, in.TargetType, in.TargetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound(string(in.TargetType))
	}

	var existing int64
	err = database.DB.WithContext(ctx).Model(&Report{}).
		Where("reporter_id = ? AND target_type = ? AND target_id = ?", actor.UserID, in.TargetType, in.TargetID).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, apperr.New(apperr.CodeAlreadyExists, "you have already reported this")
	}

	r := Report{
		ID:          uuid.New().String(),
		CreatedAt:   now(),
		UpdatedAt:   now(),
		ReporterID:  actor.UserID,
		TargetType:  in.TargetType,
		TargetID:    in.TargetID,
		Reason:      in.Reason,
		Description: in.Description,
		Status:      StatusPending,
	}
	if err := database.DB.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, err
	}

	logs.LogJSON("INFO", "Report created", map[string]interface{}{
		"reportID":   r.ID,
		"targetType": r.TargetType,
		"targetID":   r.TargetID,
		"userID":     actor.UserID,
	})
	return &r, nil
}

func List(ctx context.Context, actor permission.Actor, f Filter, page httpx.Page) ([]Report, int64, error) {
	if !actor.Can(permission.ReportReview) {
		return nil, 0, apperr.Forbidden("moderators only")
	}

	q := database.DB.WithContext(ctx).Model(&Report{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TargetType != "" {
		q = q.Where("target_type = ?", f.TargetType)
	}
	if f.Reason != "" {
		q = q.Where("reason = ?", f.Reason)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	reports := []Report{}
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	if err := attachReporters(ctx, reports); err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// Resolve records a moderator decision. Resolved and rejected reports get a
// resolution time; reviewed keeps the report open.
func Resolve(ctx context.Context, actor permission.Actor, id string, in ResolveInput) (*Report, error) {
	if !actor.Can(permission.ReportReview) {
		return nil, apperr.Forbidden("moderators only")
	}
	if !in.Status.IsValid() || in.Status == StatusPending {
		return nil, apperr.Validation("status must be reviewed, resolved or rejected")
	}
	in.Note = strings.TrimSpace(in.Note)
	if utf8.RuneCountInString(in.Note) > maxNote {
		return nil, apperr.Validation("note must be at most 1000 characters")
	}

	var r Report
	if err := database.DB.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("report")
		}
		return nil, err
	}
	if r.Status.closed() {
		return nil, apperr.Validation("this report is already closed")
	}

	t := now()
	updates := map[string]interface{}{
		"status":         in.Status,
		"moderator_id":   actor.UserID,
		"moderator_note": in.Note,
		"updated_at":     t,
	}
	if in.Status.closed() {
		updates["resolved_at"] = t
	}
	if err := database.DB.WithContext(ctx).Model(&r).Updates(updates).Error; err != nil {
		return nil, err
	}

	moderatorID := actor.UserID
	r.Status = in.Status
	r.ModeratorID = &moderatorID
	r.ModeratorNote = in.Note
	r.UpdatedAt = t
	if in.Status.closed() {
		r.ResolvedAt = &t
	}

	logs.LogJSON("INFO", "Report resolved", map[string]interface{}{
		"reportID": id,
		"status":   in.Status,
		"userID":   actor.UserID,
	})
	return &r, nil
}

func Delete(ctx context.Context, actor permission.Actor, id string) error {
	if !actor.Can(permission.UserManage) {
		return apperr.Forbidden("admins only")
	}
	res := database.DB.WithContext(ctx).Where("id = ?", id).Delete(&Report{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("report")
	}
	return nil
}

func GetStats(ctx context.Context, actor permission.Actor) (*Stats, error) {
	if !actor.Can(permission.ReportReview) {
		return nil, apperr.Forbidden("moderators only")
	}

	type row struct {
		Key   string
		Count int64
	}
	group := func(column string) ([]row, error) {
		var rows []row
		err := database.DB.WithContext(ctx).Model(&Report{}).
			Select(column + " AS key, count(*) AS count").
			Group(column).
			Scan(&rows).Error
		return rows, err
	}

	s := &Stats{
		ByStatus: map[Status]int64{},
		ByType:   map[TargetType]int64{},
		ByReason: map[Reason]int64{},
	}

	rows, err := group("status")
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.ByStatus[Status(r.Key)] = r.Count
	}

	if rows, err = group("target_type"); err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.ByType[TargetType(r.Key)] = r.Count
	}

	if rows, err = group("reason"); err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.ByReason[Reason(r.Key)] = r.Count
	}

	err = database.DB.WithContext(ctx).Model(&Report{}).
		Where("created_at > ?", now().Add(-24*time.Hour)).
		Count(&s.Last24Hours).Error
	if err != nil {
		return nil, err
	}
	return s, nil
}

func attachReporters(ctx context.Context, reports []Report) error {
	if len(reports) == 0 {
		return nil
	}
	ids := make([]string, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, r.ReporterID)
	}
	var users []user.User
	if err := database.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return err
	}
	byID := make(map[string]user.PublicUser, len(users))
	for _, u := range users {
		byID[u.ID] = u.Public()
	}
	for i := range reports {
		if u, ok := byID[reports[i].ReporterID]; ok {
			reports[i].Reporter = &u
		}
	}
	return nil
}
