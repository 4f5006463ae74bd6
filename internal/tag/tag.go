package tag

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

const (
	MaxPerPost   = 10
	searchLimit  = 20
	popularLimit = 50
)

var (
	namePattern = regexp.MustCompile(`^[\p{L}\p{N}_-]{1,30}$`)
	spaces      = regexp.MustCompile(`\s+`)
)

type Tag struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt  time.Time `json:"created_at"`
	Name       string    `json:"name" gorm:"uniqueIndex"`
	UsageCount int       `json:"usage_count"`
}

type PostTag struct {
	PostID string `gorm:"primaryKey;type:uuid"`
	TagID  string `gorm:"primaryKey;type:uuid"`
}

// Normalize trims, lowercases and joins inner whitespace with "-".
func Normalize(name string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// NormalizeAll normalizes, validates and de-duplicates names, keeping order.
func NormalizeAll(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		n := Normalize(raw)
		if n == "" {
			continue
		}
		if !namePattern.MatchString(n) {
			return nil, apperr.Validation("tag \"" + raw + "\" is invalid").
				WithContext(map[string]interface{}{"tag": raw})
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(out) > MaxPerPost {
		return nil, apperr.Validation("a post can have at most 10 tags")
	}
	return out, nil
}

// AttachToPost makes names the post's exact tag set inside tx, creating
// missing tags and adjusting usage counts for added and removed ones.
func AttachToPost(ctx context.Context, tx *gorm.DB, postID string, names []string) error {
	names, err := NormalizeAll(names)
	if err != nil {
		return err
	}
	tx = tx.WithContext(ctx)

	wanted := map[string]bool{}
	if len(names) > 0 {
		fresh := make([]Tag, 0, len(names))
		for _, n := range names {
			fresh = append(fresh, Tag{ID: uuid.New().String(), CreatedAt: time.Now(), Name: n})
		}
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&fresh).Error; err != nil {
			return err
		}

		var ids []string
		if err := tx.Model(&Tag{}).Where("name IN ?", names).Pluck("id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			wanted[id] = true
		}
	}

	var current []string
	if err := tx.Model(&PostTag{}).Where("post_id = ?", postID).Pluck("tag_id", &current).Error; err != nil {
		return err
	}

	var removed []string
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
		if !wanted[id] {
			removed = append(removed, id)
		}
	}
	var added []PostTag
	var addedIDs []string
	for id := range wanted {
		if !have[id] {
			added = append(added, PostTag{PostID: postID, TagID: id})
			addedIDs = append(addedIDs, id)
		}
	}

	if len(removed) > 0 {
		if err := tx.Where("post_id = ? AND tag_id IN ?", postID, removed).Delete(&PostTag{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&Tag{}).Where("id IN ?", removed).
			UpdateColumn("usage_count", gorm.Expr("GREATEST(usage_count - 1, 0)")).Error; err != nil {
			return err
		}
	}
	if len(added) > 0 {
		if err := tx.Create(&added).Error; err != nil {
			return err
		}
		if err := tx.Model(&Tag{}).Where("id IN ?", addedIDs).
			UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReleaseForPost decrements usage for every tag of a post about to be deleted.
func ReleaseForPost(ctx context.Context, tx *gorm.DB, postID string) error {
	return tx.WithContext(ctx).Model(&Tag{}).
		Where("id IN (?)", tx.Model(&PostTag{}).Select("tag_id").Where("post_id = ?", postID)).
		UpdateColumn("usage_count", gorm.Expr("GREATEST(usage_count - 1, 0)")).Error
}

// NamesForPosts maps each post id to its tag names, alphabetically.
func NamesForPosts(ctx context.Context, postIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		PostID string
		Name   string
	}
	err := database.DB.WithContext(ctx).Table("post_tags").
		Select("post_tags.post_id, tags.name").
		Joins("JOIN tags ON tags.id = post_tags.tag_id").
		Where("post_tags.post_id IN ?", postIDs).
		Order("tags.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.PostID] = append(out[r.PostID], r.Name)
	}
	return out, nil
}

func Popular(ctx context.Context, limit int) ([]Tag, error) {
	if limit <= 0 || limit > popularLimit {
		limit = 20
	}
	var tags []Tag
	err := database.DB.WithContext(ctx).
		Where("usage_count > 0").
		Order("usage_count DESC, name").
		Limit(limit).
		Find(&tags).Error
	return tags, err
}

// Search returns tags starting with prefix.
func Search(ctx context.Context, prefix string) ([]Tag, error) {
	prefix = Normalize(prefix)
	if prefix == "" {
		return []Tag{}, nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)

	var tags []Tag
	err := database.DB.WithContext(ctx).
		Where("name ILIKE ?", escaped+"%").
		Order("usage_count DESC, name").
		Limit(searchLimit).
		Find(&tags).Error
	return tags, err
}

func Delete(ctx context.Context, actor permission.Actor, id string) error {
	if !actor.Can(permission.TagManage) {
		return apperr.Forbidden("only moderators can delete tags")
	}
	res := database.DB.WithContext(ctx).Where("id = ?", id).Delete(&Tag{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("tag")
	}
	return nil
}
