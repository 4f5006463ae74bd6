package favorite

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database/dbtest"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

var member = permission.Actor{UserID: "u1", Role: permission.RoleUser}

func TestGuestsCannotManageFavorites(t *testing.T) {
	ctx := context.Background()
	assert.True(t, apperr.Is(Add(ctx, permission.Guest(), "p1"), apperr.CodeUnauthorized))
	assert.True(t, apperr.Is(Remove(ctx, permission.Guest(), "p1"), apperr.CodeUnauthorized))

	_, _, err := List(ctx, permission.Guest(), httpx.NewPage(1, 20))
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	ok, err := Check(ctx, permission.Guest(), "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddIsIdempotent(t *testing.T) {
	mock := dbtest.Mock(t)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`FROM "posts"`).WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow("p1", "owner"))
		mock.ExpectExec(`INSERT INTO "favorites" .* ON CONFLICT \("user_id","post_id"\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, int64(1-i)))
		require.NoError(t, Add(context.Background(), member, "p1"))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMissingPost(t *testing.T) {
	mock := dbtest.Mock(t)
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := Add(context.Background(), member, "nope")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddHidesOthersDrafts(t *testing.T) {
	mock := dbtest.Mock(t)
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "status"}).AddRow("p1", "owner", "draft"))

	err := Add(context.Background(), member, "p1")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddOwnDraft(t *testing.T) {
	mock := dbtest.Mock(t)
	mock.ExpectQuery(`FROM "posts"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "status"}).AddRow("p1", "u1", "draft"))
	mock.ExpectExec(`INSERT INTO "favorites"`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Add(context.Background(), member, "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuspendedAccountCannotUseFavorites(t *testing.T) {
	ctx := context.Background()
	banned := permission.Actor{UserID: "u1", Role: permission.RoleGuest}

	assert.True(t, apperr.Is(Add(ctx, banned, "p1"), apperr.CodeUnauthorized))
	_, _, err := List(ctx, banned, httpx.NewPage(1, 20))
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	ok, err := Check(ctx, banned, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveAndCheck(t *testing.T) {
	mock := dbtest.Mock(t)

	mock.ExpectExec(`DELETE FROM "favorites" WHERE user_id = \$1 AND post_id = \$2`).
		WithArgs("u1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, Remove(context.Background(), member, "p1"))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "favorites"`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	ok, err := Check(context.Background(), member, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSkipsOthersDrafts(t *testing.T) {
	mock := dbtest.Mock(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "favorites"`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT "post_id" FROM "favorites"`).WillReturnRows(
		sqlmock.NewRows([]string{"post_id"}).AddRow("p2").AddRow("p1"))
	mock.ExpectQuery(`FROM "posts" WHERE id IN`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("p1", "owner", "open").
			AddRow("p2", "owner", "draft"))
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow("owner", "host"))
	mock.ExpectQuery(`FROM "post_images"`).WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}))
	mock.ExpectQuery(`FROM "post_tags"`).WillReturnRows(sqlmock.NewRows([]string{"post_id", "name"}))

	posts, total, err := List(context.Background(), member, httpx.NewPage(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
