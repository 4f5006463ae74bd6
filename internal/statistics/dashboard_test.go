package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database/dbtest"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

var adminActor = permission.Actor{UserID: "admin", Role: permission.RoleAdmin}

func TestParseRange(t *testing.T) {
	now := time.Date(2026, 3, 15, 13, 0, 0, 0, time.UTC)

	from, to, err := ParseRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", to.Format(dateLayout))
	assert.Equal(t, "2026-02-13", from.Format(dateLayout))

	from, to, err = ParseRange("2026-01-01", "2026-01-31", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", from.Format(dateLayout))
	assert.Equal(t, "2026-01-31", to.Format(dateLayout))

	_, _, err = ParseRange("2026-02-01", "2026-01-01", now)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, _, err = ParseRange("01/02/2026", "", now)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, _, err = ParseRange("2024-01-01", "2026-01-01", now)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestTimeline(t *testing.T) {
	_, err := Timeline(context.Background(), permission.Actor{UserID: "u", Role: permission.RoleUser}, time.Now(), time.Now())
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	mock := dbtest.Mock(t)
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM generate_series`).
		WithArgs("2026-01-01", "2026-01-02").
		WillReturnRows(sqlmock.NewRows([]string{"day", "users", "posts", "applications", "messages"}).
			AddRow(day, 3, 2, 5, 9).
			AddRow(day.AddDate(0, 0, 1), 0, 0, 0, 0))

	days, err := Timeline(context.Background(), adminActor, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, DayCount{Date: "2026-01-01", Users: 3, Posts: 2, Applications: 5, Messages: 9}, days[0])
	assert.Equal(t, "2026-01-02", days[1].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTop(t *testing.T) {
	mock := dbtest.Mock(t)
	mock.ExpectQuery(`SELECT posts.user_id, users.username, count\(posts.id\) AS count FROM "posts"`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "count"}).AddRow("u1", "host", 7))
	mock.ExpectQuery(`FROM "applications" JOIN posts`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "count"}))

	top, err := Top(context.Background(), adminActor, 0)
	require.NoError(t, err)
	require.Len(t, top.ByPosts, 1)
	assert.Equal(t, TopHost{UserID: "u1", Username: "host", Count: 7}, top.ByPosts[0])
	assert.Empty(t, top.ByAccepted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
