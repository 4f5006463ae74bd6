package statistics

import (
	"context"
	"time"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

const (
	dateLayout      = "2006-01-02"
	defaultSpanDays = 30
	maxSpanDays     = 366
)

// DayCount is one row of the admin activity chart.
type DayCount struct {
	Date         string `json:"date"`
	Users        int64  `json:"users"`
	Posts        int64  `json:"posts"`
	Applications int64  `json:"applications"`
	Messages     int64  `json:"messages"`
}

type TopHost struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Count    int64  `json:"count"`
}

type TopHosts struct {
	ByPosts    []TopHost `json:"by_posts"`
	ByAccepted []TopHost `json:"by_accepted"`
}

// ParseRange reads YYYY-MM-DD bounds; empty values default to the last 30 days.
func ParseRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC().Truncate(24 * time.Hour)
	if toStr != "" {
		t, err := time.Parse(dateLayout, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Validation("end_date must be YYYY-MM-DD")
		}
		to = t
	}
	from := to.AddDate(0, 0, -defaultSpanDays)
	if fromStr != "" {
		f, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Validation("start_date must be YYYY-MM-DD")
		}
		from = f
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, apperr.Validation("start_date must be before end_date")
	}
	if to.Sub(from) > maxSpanDays*24*time.Hour {
		return time.Time{}, time.Time{}, apperr.Validation("date range is limited to one year")
	}
	return from, to, nil
}

// Timeline returns per-day creation counts between from and to inclusive.
// Days without activity are present with zero counts.
func Timeline(ctx context.Context, actor permission.Actor, from, to time.Time) ([]DayCount, error) {
	if !actor.Can(permission.StatsViewAdmin) {
		return nil, apperr.Forbidden("only admins can view the dashboard")
	}

	var rows []struct {
		Day          time.Time
		Users        int64
		Posts        int64
		Applications int64
		Messages     int64
	}
	err := database.DB.WithContext(ctx).Raw(`
		SELECT d.day,
			(SELECT count(*) FROM users WHERE created_at >= d.day AND created_at < d.day + interval '1 day') AS users,
			(SELECT count(*) FROM posts WHERE created_at >= d.day AND created_at < d.day + interval '1 day') AS posts,
			(SELECT count(*) FROM applications WHERE created_at >= d.day AND created_at < d.day + interval '1 day') AS applications,
			(SELECT count(*) FROM messages WHERE created_at >= d.day AND created_at < d.day + interval '1 day') AS messages
		FROM generate_series(CAST(@from AS date), CAST(@to AS date), interval '1 day') AS d(day)
		ORDER BY d.day`,
		map[string]interface{}{"from": from.Format(dateLayout), "to": to.Format(dateLayout)}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]DayCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, DayCount{
			Date:         r.Day.Format(dateLayout),
			Users:        r.Users,
			Posts:        r.Posts,
			Applications: r.Applications,
			Messages:     r.Messages,
		})
	}
	return out, nil
}

// Top lists the most active hosts by posts and by accepted applicants.
func Top(ctx context.Context, actor permission.Actor, limit int) (*TopHosts, error) {
	if !actor.Can(permission.StatsViewAdmin) {
		return nil, apperr.Forbidden("only admins can view the dashboard")
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	out := &TopHosts{ByPosts: []TopHost{}, ByAccepted: []TopHost{}}
	err := database.DB.WithContext(ctx).Table("posts").
		Select("posts.user_id, users.username, count(posts.id) AS count").
		Joins("JOIN users ON users.id = posts.user_id").
		Group("posts.user_id, users.username").
		Order("count DESC").
		Limit(limit).
		Scan(&out.ByPosts).Error
	if err != nil {
		return nil, err
	}

	err = database.DB.WithContext(ctx).Table("applications").
		Select("posts.user_id, users.username, count(applications.id) AS count").
		Joins("JOIN posts ON posts.id = applications.post_id").
		Joins("JOIN users ON users.id = posts.user_id").
		Where("applications.status = ?", "accepted").
		Group("posts.user_id, users.username").
		Order("count DESC").
		Limit(limit).
		Scan(&out.ByAccepted).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
