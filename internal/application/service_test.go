package application

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database/dbtest"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/notification"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

var (
	owner     = permission.Actor{UserID: "owner", Role: permission.RoleUser}
	applicant = permission.Actor{UserID: "cast", Role: permission.RoleUser}
	stranger  = permission.Actor{UserID: "stranger", Role: permission.RoleUser}
)

const validMessage = "I would love to join your event!"

type sent struct {
	userID string
	typ    notification.Type
}

func stubNotify(t *testing.T) *[]sent {
	t.Helper()
	var out []sent
	original := notify
	notify = func(_ context.Context, userID string, typ notification.Type, _, _ string, _ map[string]interface{}) {
		out = append(out, sent{userID, typ})
	}
	t.Cleanup(func() { notify = original })
	return &out
}

func postRow(status string, max int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "title", "status", "max_participants"}).
		AddRow("p1", "owner", "Cast wanted", status, max)
}

func appRow(status Status) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "post_id", "applicant_id", "message", "status"}).
		AddRow("a1", "p1", "cast", validMessage, string(status))
}

func countRow(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func TestApplyRejectsBadInput(t *testing.T) {
	_, err := Apply(context.Background(), permission.Guest(), "p1", validMessage)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	_, err = Apply(context.Background(), applicant, "p1", "  hi  ")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestApply(t *testing.T) {
	notified := stubNotify(t)
	mock := dbtest.Mock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM "posts" WHERE id = \$1 .*FOR UPDATE`).WillReturnRows(postRow("open", 2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(1))
	mock.ExpectExec(`INSERT INTO "applications"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "posts" SET "application_count"=application_count \+ 1`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := Apply(context.Background(), applicant, "p1", "  "+validMessage+"  ")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, validMessage, a.Message)
	assert.Equal(t, "cast", a.ApplicantID)
	assert.Equal(t, []sent{{"owner", notification.TypeApplicationReceived}}, *notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEligibilityFailures(t *testing.T) {
	stubNotify(t)

	tests := []struct {
		name   string
		actor  permission.Actor
		expect func(sqlmock.Sqlmock)
		code   apperr.Code
	}{
		{
			name:  "closed post",
			actor: applicant,
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("closed", 2))
			},
			code: apperr.CodeValidation,
		},
		{
			name:  "own post",
			actor: owner,
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
			},
			code: apperr.CodeValidation,
		},
		{
			name:  "already applied",
			actor: applicant,
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
				m.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(1))
			},
			code: apperr.CodeAlreadyExists,
		},
		{
			name:  "post full",
			actor: applicant,
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
				m.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(0))
				m.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(2))
			},
			code: apperr.CodeConflict,
		},
		{
			name:  "missing post",
			actor: applicant,
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`FROM "posts"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			code: apperr.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := dbtest.Mock(t)
			mock.ExpectBegin()
			tt.expect(mock)
			mock.ExpectRollback()

			_, err := Apply(context.Background(), tt.actor, "p1", validMessage)
			assert.True(t, apperr.Is(err, tt.code), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApplyUniqueViolation(t *testing.T) {
	notified := stubNotify(t)
	mock := dbtest.Mock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(0))
	mock.ExpectExec(`INSERT INTO "applications"`).WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	_, err := Apply(context.Background(), applicant, "p1", validMessage)
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyExists))
	assert.Empty(t, *notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckEligibility(t *testing.T) {
	e, err := CheckEligibility(context.Background(), permission.Guest(), "p1")
	require.NoError(t, err)
	assert.False(t, e.Eligible)

	mock := dbtest.Mock(t)
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(0))
	e, err = CheckEligibility(context.Background(), applicant, "p1")
	require.NoError(t, err)
	assert.True(t, e.Eligible)

	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	e, err = CheckEligibility(context.Background(), owner, "p1")
	require.NoError(t, err)
	assert.False(t, e.Eligible)
	assert.Equal(t, "you cannot apply to your own post", e.Reason)

	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = CheckEligibility(context.Background(), applicant, "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccept(t *testing.T) {
	notified := stubNotify(t)
	mock := dbtest.Mock(t)

	mock.ExpectQuery(`FROM "applications"`).WillReturnRows(appRow(StatusPending))
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM "posts" WHERE id = \$1 .*FOR UPDATE`).WillReturnRows(postRow("open", 2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(1))
	mock.ExpectExec(`UPDATE "applications" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := UpdateStatus(context.Background(), owner, "a1", StatusAccepted, " welcome ")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, a.Status)
	assert.Equal(t, "welcome", a.ReviewNote)
	assert.NotNil(t, a.ReviewedAt)
	assert.Equal(t, []sent{{"cast", notification.TypeApplicationAccepted}}, *notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptWhenFull(t *testing.T) {
	notified := stubNotify(t)
	mock := dbtest.Mock(t)

	mock.ExpectQuery(`FROM "applications"`).WillReturnRows(appRow(StatusPending))
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 1))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).WillReturnRows(countRow(1))
	mock.ExpectRollback()

	_, err := UpdateStatus(context.Background(), owner, "a1", StatusAccepted, "")
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	assert.Empty(t, *notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReject(t *testing.T) {
	notified := stubNotify(t)
	mock := dbtest.Mock(t)

	mock.ExpectQuery(`FROM "applications"`).WillReturnRows(appRow(StatusPending))
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "applications" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := UpdateStatus(context.Background(), owner, "a1", StatusRejected, "")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, a.Status)
	assert.Equal(t, []sent{{"cast", notification.TypeApplicationRejected}}, *notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdraw(t *testing.T) {
	notified := stubNotify(t)
	mock := dbtest.Mock(t)

	mock.ExpectQuery(`FROM "applications"`).WillReturnRows(appRow(StatusAccepted))
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "applications" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "posts" SET "application_count"=GREATEST`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := UpdateStatus(context.Background(), applicant, "a1", StatusWithdrawn, "")
	require.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, a.Status)
	assert.Nil(t, a.ReviewedAt)
	assert.Equal(t, []sent{{"owner", notification.TypeApplicationWithdrawn}}, *notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusTransitions(t *testing.T) {
	stubNotify(t)

	tests := []struct {
		name    string
		actor   permission.Actor
		current Status
		next    Status
		code    apperr.Code
	}{
		{"stranger reviews", stranger, StatusPending, StatusAccepted, apperr.CodePermissionDenied},
		{"applicant accepts self", applicant, StatusPending, StatusAccepted, apperr.CodePermissionDenied},
		{"owner withdraws", owner, StatusPending, StatusWithdrawn, apperr.CodePermissionDenied},
		{"review twice", owner, StatusRejected, StatusAccepted, apperr.CodeValidation},
		{"withdraw rejected", applicant, StatusRejected, StatusWithdrawn, apperr.CodeValidation},
		{"back to pending", owner, StatusAccepted, StatusPending, apperr.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := dbtest.Mock(t)
			mock.ExpectQuery(`FROM "applications"`).WillReturnRows(appRow(tt.current))
			mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))

			_, err := UpdateStatus(context.Background(), tt.actor, "a1", tt.next, "")
			assert.True(t, apperr.Is(err, tt.code), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	_, err := UpdateStatus(context.Background(), owner, "a1", Status("maybe"), "")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestUpdateStatusConcurrentChange(t *testing.T) {
	stubNotify(t)
	mock := dbtest.Mock(t)

	mock.ExpectQuery(`FROM "applications"`).WillReturnRows(appRow(StatusPending))
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "applications" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := UpdateStatus(context.Background(), owner, "a1", StatusRejected, "")
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHiddenFromStrangers(t *testing.T) {
	mock := dbtest.Mock(t)
	mock.ExpectQuery(`FROM "applications"`).WillReturnRows(appRow(StatusPending))
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))

	_, err := Get(context.Background(), stranger, "a1")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	mock.ExpectQuery(`FROM "applications"`).WillReturnRows(appRow(StatusPending))
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow("cast", "kuro"))

	a, err := Get(context.Background(), owner, "a1")
	require.NoError(t, err)
	require.NotNil(t, a.Applicant)
	assert.Equal(t, "kuro", a.Applicant.Username)
	assert.Equal(t, "Cast wanted", a.Post.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForPost(t *testing.T) {
	mod := permission.Actor{UserID: "mod", Role: permission.RoleModerator}
	page := httpx.NewPage(1, 20)

	tests := []struct {
		name   string
		actor  permission.Actor
		status Status
		code   apperr.Code
	}{
		{"stranger", stranger, "", apperr.CodePermissionDenied},
		{"moderator is not the owner", mod, "", apperr.CodePermissionDenied},
		{"owner with unknown status", owner, Status("maybe"), apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := dbtest.Mock(t)
			mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))

			_, _, err := ListForPost(context.Background(), tt.actor, "p1", tt.status, page)
			assert.True(t, apperr.Is(err, tt.code))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("owner filters by status", func(t *testing.T) {
		mock := dbtest.Mock(t)
		mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "applications" WHERE post_id = \$1 AND status = \$2`).
			WithArgs("p1", "pending").
			WillReturnRows(countRow(1))
		mock.ExpectQuery(`SELECT \* FROM "applications" WHERE post_id = \$1 AND status = \$2 ORDER BY created_at DESC`).
			WillReturnRows(appRow(StatusPending))
		mock.ExpectQuery(`FROM "users" WHERE id IN`).WillReturnRows(
			sqlmock.NewRows([]string{"id", "username"}).AddRow("cast", "kuro"))

		list, total, err := ListForPost(context.Background(), owner, "p1", StatusPending, page)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, list, 1)
		require.NotNil(t, list[0].Applicant)
		assert.Equal(t, "kuro", list[0].Applicant.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListMine(t *testing.T) {
	page := httpx.NewPage(1, 20)

	_, _, err := ListMine(context.Background(), permission.Guest(), "", page)
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, _, err = ListMine(context.Background(), applicant, Status("maybe"), page)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	mock := dbtest.Mock(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications" WHERE applicant_id = \$1`).
		WithArgs("cast").
		WillReturnRows(countRow(1))
	mock.ExpectQuery(`SELECT \* FROM "applications" WHERE applicant_id = \$1 ORDER BY created_at DESC`).
		WillReturnRows(appRow(StatusAccepted))
	mock.ExpectQuery(`FROM "posts" WHERE id IN`).WillReturnRows(postRow("open", 2))
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow("owner", "host"))
	mock.ExpectQuery(`FROM "post_images"`).WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}))
	mock.ExpectQuery(`FROM "post_tags"`).WillReturnRows(sqlmock.NewRows([]string{"post_id", "name"}))

	list, total, err := ListMine(context.Background(), applicant, "", page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, StatusAccepted, list[0].Status)
	require.NotNil(t, list[0].Post)
	assert.Equal(t, "Cast wanted", list[0].Post.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	mock := dbtest.Mock(t)
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	mock.ExpectQuery(`SELECT status, count\(\*\) AS count FROM "applications"`).WillReturnRows(
		sqlmock.NewRows([]string{"status", "count"}).AddRow("pending", 3).AddRow("accepted", 1))

	stats, err := Stats(context.Background(), owner, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats[StatusPending])
	assert.Equal(t, int64(1), stats[StatusAccepted])
	assert.Equal(t, int64(0), stats[StatusWithdrawn])

	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(postRow("open", 2))
	_, err = Stats(context.Background(), stranger, "p1")
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))
	assert.NoError(t, mock.ExpectationsWereMet())
}
