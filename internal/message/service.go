// Package message implements the per-application chat between a post owner
// and an applicant.
package message

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/application"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/events"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/notification"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/ratelimit"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

const (
	MaxContent   = 2000
	DefaultLimit = 50
	MaxLimit     = 100
	previewRunes = 50
)

var (
	notify = notification.Notify
	now    = time.Now

	// SendLimit caps messages per user per SendWindow.
	SendLimit  int64 = 30
	SendWindow       = time.Minute
)

// thread resolves the application and checks that actor takes part in it.
// It returns the other participant's id.
func thread(ctx context.Context, actor permission.Actor, applicationID string) (*application.Application, string, error) {
	a, ownerID, err := application.Participants(ctx, applicationID)
	if err != nil {
		return nil, "", err
	}
	switch actor.UserID {
	case a.ApplicantID:
		return a, ownerID, nil
	case ownerID:
		return a, a.ApplicantID, nil
	default:
		return nil, "", apperr.NotFound("application")
	}
}

func Send(ctx context.Context, actor permission.Actor, applicationID, content string) (*Message, error) {
	if !actor.Can(permission.MessageSend) {
		return nil, apperr.Unauthorized("please sign in")
	}
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n < 1 || n > MaxContent {
		return nil, apperr.Validation("message must be 1-2000 characters")
	}

	a, receiverID, err := thread(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if a.Status == application.StatusWithdrawn {
		return nil, apperr.Validation("this application has been withdrawn")
	}
	if err := ratelimit.Check(ctx, "message", actor.UserID, SendLimit, SendWindow); err != nil {
		return nil, err
	}

	m := Message{
		ID:            uuid.New().String(),
		CreatedAt:     now(),
		ApplicationID: applicationID,
		SenderID:      actor.UserID,
		ReceiverID:    receiverID,
		Content:       content,
	}
	if err := database.DB.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}

	logs.LogJSON("INFO", "Message sent", map[string]interface{}{
		"messageID":     m.ID,
		"applicationID": applicationID,
		"userID":        actor.UserID,
	})

	notify(ctx, receiverID, notification.TypeNewMessage, "新しいメッセージ", preview(content),
		map[string]interface{}{"application_id": applicationID, "message_id": m.ID, "sender_id": actor.UserID})
	events.Publish(ctx, events.Event{
		Type:     events.MessageCreated,
		UserIDs:  []string{receiverID, actor.UserID},
		EntityID: m.ID,
		Data:     map[string]interface{}{"application_id": applicationID},
	})
	return &m, nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	return string([]rune(content)[:previewRunes]) + "…"
}

// List returns up to limit messages older than before, oldest first.
func List(ctx context.Context, actor permission.Actor, applicationID string, before *time.Time, limit int) ([]Message, error) {
	if !actor.Can(permission.MessageRead) {
		return nil, apperr.Unauthorized("please sign in")
	}
	if _, _, err := thread(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	q := database.DB.WithContext(ctx).Where("application_id = ?", applicationID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	msgs := []Message{}
	if err := q.Order("created_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead marks every unread message addressed to actor in the thread.
func MarkRead(ctx context.Context, actor permission.Actor, applicationID string) (int64, error) {
	if !actor.Can(permission.MessageRead) {
		return 0, apperr.Unauthorized("please sign in")
	}
	if _, _, err := thread(ctx, actor, applicationID); err != nil {
		return 0, err
	}

	res := database.DB.WithContext(ctx).Model(&Message{}).
		Where("application_id = ? AND receiver_id = ? AND is_read = ?", applicationID, actor.UserID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now()})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		events.Publish(ctx, events.Event{
			Type:     events.MessagesRead,
			UserIDs:  []string{actor.UserID},
			EntityID: applicationID,
			Data:     map[string]interface{}{"count": res.RowsAffected},
		})
	}
	return res.RowsAffected, nil
}

func UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := database.DB.WithContext(ctx).Model(&Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}

type threadRow struct {
	ApplicationID string
	PostID        string
	PostTitle     string
	Status        string
	ApplicantID   string
	OwnerID       string
}

// Conversations lists every thread of actor that has at least one message,
// most recent first.
func Conversations(ctx context.Context, actor permission.Actor) ([]Conversation, error) {
	if !actor.Can(permission.MessageRead) {
		return nil, apperr.Unauthorized("please sign in")
	}

	var rows []threadRow
	err := database.DB.WithContext(ctx).Raw(`
		SELECT a.id AS application_id, a.post_id, p.title AS post_title, a.status,
		       a.applicant_id, p.user_id AS owner_id
		FROM applications a
		JOIN posts p ON p.id = a.post_id
		WHERE (a.applicant_id = @me OR p.user_id = @me)
		  AND EXISTS (SELECT 1 FROM messages m WHERE m.application_id = a.id)`,
		map[string]interface{}{"me": actor.UserID}).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []Conversation{}, nil
	}

	appIDs := make([]string, 0, len(rows))
	otherIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		appIDs = append(appIDs, r.ApplicationID)
		if r.ApplicantID == actor.UserID {
			otherIDs = append(otherIDs, r.OwnerID)
		} else {
			otherIDs = append(otherIDs, r.ApplicantID)
		}
	}

	var last []Message
	err = database.DB.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (application_id) *
		FROM messages
		WHERE application_id IN ?
		ORDER BY application_id, created_at DESC`, appIDs).Scan(&last).Error
	if err != nil {
		return nil, err
	}
	lastByApp := make(map[string]Message, len(last))
	for _, m := range last {
		lastByApp[m.ApplicationID] = m
	}

	var unread []struct {
		ApplicationID string
		Count         int64
	}
	err = database.DB.WithContext(ctx).Model(&Message{}).
		Select("application_id, count(*) AS count").
		Where("receiver_id = ? AND is_read = ? AND application_id IN ?", actor.UserID, false, appIDs).
		Group("application_id").
		Scan(&unread).Error
	if err != nil {
		return nil, err
	}
	unreadByApp := make(map[string]int64, len(unread))
	for _, u := range unread {
		unreadByApp[u.ApplicationID] = u.Count
	}

	var users []user.User
	if err := database.DB.WithContext(ctx).Where("id IN ?", otherIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	userByID := make(map[string]user.PublicUser, len(users))
	for _, u := range users {
		userByID[u.ID] = u.Public()
	}

	out := make([]Conversation, 0, len(rows))
	for i, r := range rows {
		c := Conversation{
			ApplicationID:     r.ApplicationID,
			PostID:            r.PostID,
			PostTitle:         r.PostTitle,
			ApplicationStatus: r.Status,
			UnreadCount:       unreadByApp[r.ApplicationID],
		}
		if u, ok := userByID[otherIDs[i]]; ok {
			c.OtherUser = &u
		}
		if m, ok := lastByApp[r.ApplicationID]; ok {
			c.LastMessage = &m
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return lastAt(out[i]).After(lastAt(out[j]))
	})
	return out, nil
}

func lastAt(c Conversation) time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.CreatedAt
}
