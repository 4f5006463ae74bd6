package notification

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanakadamon1/castchat-sub000/internal/database/dbtest"
)

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, _, subject, _ string) error {
	f.sent = append(f.sent, to+"|"+subject)
	return f.err
}

type fakePush struct {
	statuses map[string]int
	sent     []string
}

func (f *fakePush) SendPush(_ context.Context, sub PushSubscription, _ []byte) (int, error) {
	f.sent = append(f.sent, sub.Endpoint)
	return f.statuses[sub.Endpoint], nil
}

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestWorker(email EmailSender, push PushSender) *Worker {
	w := NewWorker(email, push, "https://castchat.jp/")
	w.now = func() time.Time { return fixedNow }
	return w
}

func deliveryRow(channel Channel, attempts int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "notification_id", "user_id", "channel", "status", "attempts"}).
		AddRow("d1", "n1", "u1", string(channel), "pending", attempts)
}

func notificationRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message"}).
		AddRow("n1", "u1", "new_message", "New message", "hello")
}

func TestNextAttempt(t *testing.T) {
	tests := []struct {
		attempts   int
		wantStatus DeliveryStatus
		wantDelay  time.Duration
	}{
		{1, DeliveryPending, 30 * time.Second},
		{2, DeliveryPending, 60 * time.Second},
		{3, DeliveryFailed, 0},
		{4, DeliveryFailed, 0},
	}

	for _, tt := range tests {
		status, next := NextAttempt(tt.attempts, fixedNow)
		assert.Equal(t, tt.wantStatus, status)
		assert.Equal(t, fixedNow.Add(tt.wantDelay), next)
	}
}

func TestRunOnceEmailSuccess(t *testing.T) {
	mock := dbtest.Mock(t)
	email := &fakeEmail{}
	w := newTestWorker(email, nil)

	mock.ExpectQuery(`FROM "notification_deliveries"`).WillReturnRows(deliveryRow(ChannelEmail, 0))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET "next_attempt_at"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM "notifications"`).WillReturnRows(notificationRow())
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"email", "display_name"}).AddRow("mika@example.com", "Mika"))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET`).
		WithArgs(1, "", "sent", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"mika@example.com|[CastChat] New message"}, email.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceEmailFailureSchedulesRetry(t *testing.T) {
	mock := dbtest.Mock(t)
	w := newTestWorker(&fakeEmail{err: errors.New("sendgrid: status 503")}, nil)

	mock.ExpectQuery(`FROM "notification_deliveries"`).WillReturnRows(deliveryRow(ChannelEmail, 1))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET "next_attempt_at"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM "notifications"`).WillReturnRows(notificationRow())
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"email", "display_name"}).AddRow("mika@example.com", "Mika"))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET`).
		WithArgs(2, sqlmock.AnyArg(), fixedNow.Add(60*time.Second), "pending", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceThirdFailureGivesUp(t *testing.T) {
	mock := dbtest.Mock(t)
	w := newTestWorker(&fakeEmail{err: errors.New("timeout")}, nil)

	mock.ExpectQuery(`FROM "notification_deliveries"`).WillReturnRows(deliveryRow(ChannelEmail, 2))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET "next_attempt_at"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM "notifications"`).WillReturnRows(notificationRow())
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"email", "display_name"}).AddRow("mika@example.com", "Mika"))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET`).
		WithArgs(3, sqlmock.AnyArg(), fixedNow, "failed", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceSkipsClaimedRows(t *testing.T) {
	mock := dbtest.Mock(t)
	w := newTestWorker(&fakeEmail{}, nil)

	mock.ExpectQuery(`FROM "notification_deliveries"`).WillReturnRows(deliveryRow(ChannelEmail, 0))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET "next_attempt_at"`).WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOncePushDropsGoneSubscriptions(t *testing.T) {
	mock := dbtest.Mock(t)
	push := &fakePush{statuses: map[string]int{
		"https://push.example.com/old": http.StatusGone,
		"https://push.example.com/new": http.StatusCreated,
	}}
	w := newTestWorker(nil, push)

	mock.ExpectQuery(`FROM "notification_deliveries"`).WillReturnRows(deliveryRow(ChannelPush, 0))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET "next_attempt_at"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM "notifications"`).WillReturnRows(notificationRow())
	mock.ExpectQuery(`FROM "push_subscriptions"`).WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "endpoint", "p256dh", "auth"}).
		AddRow("s1", "u1", "https://push.example.com/old", "k", "a").
		AddRow("s2", "u1", "https://push.example.com/new", "k", "a"))
	mock.ExpectExec(`DELETE FROM "push_subscriptions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET`).
		WithArgs(1, "", "sent", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, push.sent, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceUnconfiguredChannelFailsImmediately(t *testing.T) {
	mock := dbtest.Mock(t)
	w := newTestWorker(nil, nil)

	mock.ExpectQuery(`FROM "notification_deliveries"`).WillReturnRows(deliveryRow(ChannelEmail, 0))
	mock.ExpectExec(`UPDATE "notification_deliveries" SET "next_attempt_at"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM "notifications"`).WillReturnRows(notificationRow())
	mock.ExpectExec(`UPDATE "notification_deliveries" SET`).
		WithArgs(1, "email channel is not configured", "failed", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedule(t *testing.T) {
	c := cron.New()
	id, err := newTestWorker(nil, nil).Schedule(c, "@every 30s")
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	_, err = newTestWorker(nil, nil).Schedule(c, "not a spec")
	assert.Error(t, err)
}
