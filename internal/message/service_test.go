package message

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database/dbtest"
	"github.com/tanakadamon1/castchat-sub000/internal/notification"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

var (
	owner     = permission.Actor{UserID: "owner", Role: permission.RoleUser}
	applicant = permission.Actor{UserID: "cast", Role: permission.RoleUser}
	stranger  = permission.Actor{UserID: "stranger", Role: permission.RoleUser}
)

type sent struct {
	userID string
	typ    notification.Type
	body   string
}

func stubNotify(t *testing.T) *[]sent {
	t.Helper()
	var out []sent
	original := notify
	notify = func(_ context.Context, userID string, typ notification.Type, _, body string, _ map[string]interface{}) {
		out = append(out, sent{userID, typ, body})
	}
	t.Cleanup(func() { notify = original })
	return &out
}

func expectThread(mock sqlmock.Sqlmock, status string) {
	mock.ExpectQuery(`FROM "applications"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "post_id", "applicant_id", "status"}).AddRow("a1", "p1", "cast", status))
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("owner"))
}

func TestSendValidation(t *testing.T) {
	_, err := Send(context.Background(), permission.Guest(), "a1", "hello")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, err = Send(context.Background(), applicant, "a1", "   ")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = Send(context.Background(), applicant, "a1", strings.Repeat("あ", MaxContent+1))
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestSend(t *testing.T) {
	notified := stubNotify(t)
	mock := dbtest.Mock(t)

	expectThread(mock, "pending")
	mock.ExpectExec(`INSERT INTO "messages"`).WillReturnResult(sqlmock.NewResult(0, 1))

	m, err := Send(context.Background(), applicant, "a1", "  when does it start?  ")
	require.NoError(t, err)
	assert.Equal(t, "owner", m.ReceiverID)
	assert.Equal(t, "when does it start?", m.Content)
	assert.Equal(t, []sent{{"owner", notification.TypeNewMessage, "when does it start?"}}, *notified)

	expectThread(mock, "accepted")
	mock.ExpectExec(`INSERT INTO "messages"`).WillReturnResult(sqlmock.NewResult(0, 1))
	m, err = Send(context.Background(), owner, "a1", strings.Repeat("x", 60))
	require.NoError(t, err)
	assert.Equal(t, "cast", m.ReceiverID)
	assert.Equal(t, strings.Repeat("x", 50)+"…", (*notified)[1].body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendRejected(t *testing.T) {
	notified := stubNotify(t)
	mock := dbtest.Mock(t)

	expectThread(mock, "pending")
	_, err := Send(context.Background(), stranger, "a1", "hi")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	expectThread(mock, "withdrawn")
	_, err = Send(context.Background(), owner, "a1", "hi")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	assert.Empty(t, *notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReturnsAscending(t *testing.T) {
	mock := dbtest.Mock(t)
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	before := t1.Add(time.Hour)

	expectThread(mock, "pending")
	mock.ExpectQuery(`SELECT \* FROM "messages" WHERE application_id = \$1 AND created_at < \$2 ORDER BY created_at DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "content"}).
			AddRow("m2", t1.Add(time.Minute), "second").
			AddRow("m1", t1, "first"))

	msgs, err := List(context.Background(), owner, "a1", &before, 500)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead(t *testing.T) {
	mock := dbtest.Mock(t)

	expectThread(mock, "pending")
	mock.ExpectExec(`UPDATE "messages" SET "is_read"=\$1,"read_at"=\$2 WHERE application_id = \$3 AND receiver_id = \$4`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := MarkRead(context.Background(), applicant, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	expectThread(mock, "pending")
	_, err = MarkRead(context.Background(), stranger, "a1")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversations(t *testing.T) {
	mock := dbtest.Mock(t)
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM applications a\s+JOIN posts p`).WillReturnRows(
		sqlmock.NewRows([]string{"application_id", "post_id", "post_title", "status", "applicant_id", "owner_id"}).
			AddRow("a1", "p1", "Old event", "pending", "cast", "owner").
			AddRow("a2", "p2", "My event", "accepted", "guest", "cast"))
	mock.ExpectQuery(`SELECT DISTINCT ON \(application_id\)`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "application_id", "created_at", "content"}).
			AddRow("m1", "a1", t1, "older").
			AddRow("m2", "a2", t1.Add(time.Hour), "newer"))
	mock.ExpectQuery(`SELECT application_id, count\(\*\) AS count FROM "messages"`).WillReturnRows(
		sqlmock.NewRows([]string{"application_id", "count"}).AddRow("a1", 2))
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "username"}).AddRow("owner", "host").AddRow("guest", "mika"))

	convs, err := Conversations(context.Background(), applicant)
	require.NoError(t, err)
	require.Len(t, convs, 2)

	assert.Equal(t, "a2", convs[0].ApplicationID)
	assert.Equal(t, "mika", convs[0].OtherUser.Username)
	assert.Equal(t, int64(0), convs[0].UnreadCount)

	assert.Equal(t, "a1", convs[1].ApplicationID)
	assert.Equal(t, "host", convs[1].OtherUser.Username)
	assert.Equal(t, int64(2), convs[1].UnreadCount)
	assert.Equal(t, "older", convs[1].LastMessage.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}
