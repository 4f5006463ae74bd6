package category

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{2,40}$`)

type Category struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt   time.Time `json:"created_at"`
	Slug        string    `json:"slug" gorm:"uniqueIndex"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	SortOrder   int       `json:"sort_order"`
	IsActive    bool      `json:"is_active"`
}

func (Category) TableName() string {
	return "post_categories"
}

// WithCount is a category plus the number of open posts in it.
type WithCount struct {
	Category
	PostCount int64 `json:"post_count"`
}

type Input struct {
	Slug        *string `json:"slug"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	SortOrder   *int    `json:"sort_order"`
	IsActive    *bool   `json:"is_active"`
}

func (in *Input) validate(creating bool) error {
	if creating && (in.Slug == nil || in.Name == nil) {
		return apperr.Validation("slug and name are required")
	}
	if in.Slug != nil {
		*in.Slug = strings.ToLower(strings.TrimSpace(*in.Slug))
		if !slugPattern.MatchString(*in.Slug) {
			return apperr.Validation("slug must be 2-40 lowercase letters, digits or hyphens")
		}
	}
	if in.Name != nil {
		*in.Name = strings.TrimSpace(*in.Name)
		if n := utf8.RuneCountInString(*in.Name); n < 1 || n > 50 {
			return apperr.Validation("name must be 1-50 characters")
		}
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > 500 {
		return apperr.Validation("description must be at most 500 characters")
	}
	return nil
}

// List returns active categories in display order with their open post counts.
func List(ctx context.Context) ([]WithCount, error) {
	var out []WithCount
	err := database.DB.WithContext(ctx).
		Table("post_categories").
		Select("post_categories.*, (SELECT count(*) FROM posts p WHERE p.category_id = post_categories.id AND p.status = 'open') AS post_count").
		Where("post_categories.is_active").
		Order("sort_order, name").
		Scan(&out).Error
	return out, err
}

func GetBySlug(ctx context.Context, slug string) (*Category, error) {
	var c Category
	if err := database.DB.WithContext(ctx).Where("slug = ?", slug).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("category")
		}
		return nil, err
	}
	return &c, nil
}

// EnsureActive fails unless id names an active category.
func EnsureActive(ctx context.Context, db *gorm.DB, id string) error {
	var c Category
	if err := db.WithContext(ctx).Select("id", "is_active").Where("id = ?", id).Take(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Validation("category does not exist")
		}
		return err
	}
	if !c.IsActive {
		return apperr.Validation("category is not active")
	}
	return nil
}

func Create(ctx context.Context, actor permission.Actor, in Input) (*Category, error) {
	if !actor.Can(permission.CategoryManage) {
		return nil, apperr.Forbidden("only admins can manage categories")
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}

	c := Category{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Slug:      *in.Slug,
		Name:      *in.Name,
		IsActive:  true,
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.Icon != nil {
		c.Icon = *in.Icon
	}
	if in.SortOrder != nil {
		c.SortOrder = *in.SortOrder
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}

	if err := database.DB.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func Update(ctx context.Context, actor permission.Actor, id string, in Input) (*Category, error) {
	if !actor.Can(permission.CategoryManage) {
		return nil, apperr.Forbidden("only admins can manage categories")
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Slug != nil {
		updates["slug"] = *in.Slug
	}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Icon != nil {
		updates["icon"] = *in.Icon
	}
	if in.SortOrder != nil {
		updates["sort_order"] = *in.SortOrder
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) == 0 {
		return nil, apperr.Validation("nothing to update")
	}

	res := database.DB.WithContext(ctx).Model(&Category{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("category")
	}

	var c Category
	if err := database.DB.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
