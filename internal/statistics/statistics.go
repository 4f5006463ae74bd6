// Package statistics aggregates counts for profiles, posts and the admin dashboard.
package statistics

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

const recentWindow = 7 * 24 * time.Hour

type PlatformStats struct {
	TotalUsers           int64 `json:"total_users"`
	TotalPosts           int64 `json:"total_posts"`
	OpenPosts            int64 `json:"open_posts"`
	TotalApplications    int64 `json:"total_applications"`
	AcceptedApplications int64 `json:"accepted_applications"`
	PostsLastWeek        int64 `json:"posts_last_week"`
}

type CategoryCount struct {
	CategoryID string `json:"category_id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	OpenPosts  int64  `json:"open_posts"`
}

type UserStats struct {
	PostsCreated         int64   `json:"posts_created"`
	ApplicationsSent     int64   `json:"applications_sent"`
	ApplicationsReceived int64   `json:"applications_received"`
	ApplicationsAccepted int64   `json:"applications_accepted"`
	AcceptanceRate       float64 `json:"acceptance_rate"`
	Favorites            int64   `json:"favorites"`
}

type PostStats struct {
	PostID       string           `json:"post_id"`
	Views        int64            `json:"views"`
	Applications map[string]int64 `json:"applications"`
}

type AdminStats struct {
	Platform       PlatformStats   `json:"platform"`
	RecentErrors   []apperr.Record `json:"recent_errors"`
	ErrorCount     int             `json:"error_count"`
	PendingReports int64           `json:"pending_reports"`
}

func Platform(ctx context.Context) (*PlatformStats, error) {
	var s PlatformStats
	err := database.DB.WithContext(ctx).Raw(`SELECT
		(SELECT count(*) FROM users) AS total_users,
		(SELECT count(*) FROM posts) AS total_posts,
		(SELECT count(*) FROM posts WHERE status = 'open') AS open_posts,
		(SELECT count(*) FROM applications) AS total_applications,
		(SELECT count(*) FROM applications WHERE status = 'accepted') AS accepted_applications,
		(SELECT count(*) FROM posts WHERE created_at >= ?) AS posts_last_week`,
		time.Now().Add(-recentWindow)).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ByCategory counts open posts per active category, in display order.
func ByCategory(ctx context.Context) ([]CategoryCount, error) {
	var out []CategoryCount
	err := database.DB.WithContext(ctx).Raw(`SELECT c.id AS category_id, c.slug, c.name,
		count(p.id) AS open_posts
		FROM post_categories c
		LEFT JOIN posts p ON p.category_id = c.id AND p.status = 'open'
		WHERE c.is_active
		GROUP BY c.id, c.slug, c.name, c.sort_order
		ORDER BY c.sort_order, c.name`).Scan(&out).Error
	return out, err
}

// ForUser returns public activity counts. The acceptance rate is
// accepted / sent and 0 when nothing was sent.
func ForUser(ctx context.Context, userID string) (*UserStats, error) {
	var s UserStats
	err := database.DB.WithContext(ctx).Raw(`SELECT
		(SELECT count(*) FROM posts WHERE user_id = @user) AS posts_created,
		(SELECT count(*) FROM applications WHERE applicant_id = @user) AS applications_sent,
		(SELECT count(*) FROM applications a JOIN posts p ON p.id = a.post_id WHERE p.user_id = @user) AS applications_received,
		(SELECT count(*) FROM applications WHERE applicant_id = @user AND status = 'accepted') AS applications_accepted,
		(SELECT count(*) FROM favorites WHERE user_id = @user) AS favorites`,
		map[string]interface{}{"user": userID}).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ApplicationsSent > 0 {
		s.AcceptanceRate = float64(s.ApplicationsAccepted) / float64(s.ApplicationsSent)
	}
	return &s, nil
}

// ForPost is limited to the post owner and admins.
func ForPost(ctx context.Context, actor permission.Actor, postID string) (*PostStats, error) {
	var post struct {
		UserID    string
		ViewCount int64
	}
	err := database.DB.WithContext(ctx).Table("posts").
		Select("user_id", "view_count").
		Where("id = ?", postID).
		Take(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("post")
		}
		return nil, err
	}
	if post.UserID != actor.UserID && !actor.Can(permission.StatsViewAdmin) {
		return nil, apperr.Forbidden("only the post owner can view its statistics")
	}

	var rows []struct {
		Status string
		Count  int64
	}
	err = database.DB.WithContext(ctx).Table("applications").
		Select("status, count(*) AS count").
		Where("post_id = ?", postID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byStatus := map[string]int64{"pending": 0, "accepted": 0, "rejected": 0, "withdrawn": 0}
	for _, r := range rows {
		byStatus[r.Status] = r.Count
	}
	return &PostStats{PostID: postID, Views: post.ViewCount, Applications: byStatus}, nil
}

func Admin(ctx context.Context, actor permission.Actor) (*AdminStats, error) {
	if !actor.Can(permission.StatsViewAdmin) {
		return nil, apperr.Forbidden("only admins can view the dashboard")
	}

	platform, err := Platform(ctx)
	if err != nil {
		return nil, err
	}

	var pending int64
	err = database.DB.WithContext(ctx).Table("reports").Where("status = ?", "pending").Count(&pending).Error
	if err != nil {
		return nil, err
	}

	return &AdminStats{
		Platform:       *platform,
		RecentErrors:   apperr.Recorder.Recent(50),
		ErrorCount:     apperr.Recorder.Len(),
		PendingReports: pending,
	}, nil
}
