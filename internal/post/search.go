package post

import (
	"context"
	"strings"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/category"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/tag"
)

const (
	SortNewest   = "newest"
	SortPopular  = "popular"
	SortDeadline = "deadline"
	SortApplied  = "applications"
)

var sortOrders = map[string]string{
	SortNewest:   "created_at DESC",
	SortPopular:  "view_count DESC, created_at DESC",
	SortDeadline: "deadline ASC NULLS LAST, created_at DESC",
	SortApplied:  "application_count DESC, created_at DESC",
}

func likePattern(s string) string {
	return "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s) + "%"
}

// Search filters public posts. Drafts are never returned.
func Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Status == "" {
		params.Status = StatusOpen
	}
	if params.Status == StatusDraft {
		return nil, apperr.Validation("drafts cannot be searched")
	}
	if params.Status != StatusOpen && params.Status != StatusClosed && params.Status != StatusCancelled {
		return nil, apperr.Validation("status must be open, closed or cancelled")
	}
	if params.Sort == "" {
		params.Sort = SortNewest
	}
	order, ok := sortOrders[params.Sort]
	if !ok {
		return nil, apperr.Validation("sort must be newest, popular, deadline or applications")
	}
	page := httpx.NewPage(params.Page, params.Limit)

	q := database.DB.WithContext(ctx).Model(&Post{}).Where("status = ?", params.Status)

	if kw := strings.TrimSpace(params.Query); kw != "" {
		like := likePattern(kw)
		q = q.Where("(title ILIKE ? OR description ILIKE ?)", like, like)
	}
	if params.Category != "" {
		q = q.Where("category_id IN (?)",
			database.DB.Model(&category.Category{}).Select("id").Where("slug = ?", params.Category))
	}
	if len(params.Tags) > 0 {
		names := make([]string, 0, len(params.Tags))
		for _, t := range params.Tags {
			if n := tag.Normalize(t); n != "" {
				names = append(names, n)
			}
		}
		if len(names) > 0 {
			q = q.Where("id IN (?)",
				database.DB.Table("post_tags").
					Select("post_tags.post_id").
					Joins("JOIN tags ON tags.id = post_tags.tag_id").
					Where("tags.name IN ?", names))
		}
	}
	if params.Platform != "" {
		q = q.Where("? = ANY(platforms)", strings.ToLower(params.Platform))
	}
	if params.Language != "" {
		q = q.Where("? = ANY(languages)", strings.ToLower(params.Language))
	}
	if params.HasDeadline {
		q = q.Where("deadline IS NOT NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	posts := []Post{}
	if err := q.Order(order).Limit(page.Limit).Offset(page.Offset).Find(&posts).Error; err != nil {
		return nil, err
	}
	if err := hydrate(ctx, posts); err != nil {
		return nil, err
	}

	return &SearchResult{Posts: posts, Total: total, Page: page.Page, Limit: page.Limit}, nil
}
