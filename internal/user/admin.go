package user

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

// List returns users matching q (username or display name prefix), newest first.
func List(ctx context.Context, q string, page httpx.Page) ([]User, int64, error) {
	query := database.DB.WithContext(ctx).Model(&User{})
	if q = strings.TrimSpace(q); q != "" {
		like := q + "%"
		query = query.Where("username ILIKE ? OR display_name ILIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []User
	err := query.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&users).Error
	return users, total, err
}

func SetRole(ctx context.Context, actor permission.Actor, userID string, role permission.Role) error {
	if !actor.Can(permission.UserManage) {
		return apperr.Forbidden("only admins can change roles")
	}
	if !role.IsValid() || role == permission.RoleGuest {
		return apperr.Validation("role must be user, moderator or admin")
	}
	if userID == actor.UserID {
		return apperr.Validation("you cannot change your own role")
	}
	return updateUser(ctx, userID, map[string]interface{}{"role": role})
}

func SetBanned(ctx context.Context, actor permission.Actor, userID string, banned bool) error {
	if !actor.Can(permission.UserManage) {
		return apperr.Forbidden("only admins can ban users")
	}
	if userID == actor.UserID {
		return apperr.Validation("you cannot ban yourself")
	}
	return updateUser(ctx, userID, map[string]interface{}{"is_banned": banned})
}

func updateUser(ctx context.Context, userID string, updates map[string]interface{}) error {
	res := database.DB.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// ListUsers GET /api/admin/users
func ListUsers(c *gin.Context) {
	page := httpx.ParsePage(c)
	users, total, err := List(c.Request.Context(), c.Query("q"), page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total, "page": page.Page, "limit": page.Limit})
}

// UpdateUserRole PATCH /api/admin/users/:id/role
func UpdateUserRole(c *gin.Context) {
	actor := httpx.ActorFrom(c)
	var input struct {
		Role permission.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid role"))
		return
	}

	if err := SetRole(c.Request.Context(), actor, c.Param("id"), input.Role); err != nil {
		apperr.Respond(c, err)
		return
	}

	logs.LogJSON("INFO", "User role changed", map[string]interface{}{
		"route":    c.FullPath(),
		"userID":   actor.UserID,
		"targetID": c.Param("id"),
		"role":     input.Role,
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// BanUser POST /api/admin/users/:id/ban and DELETE for unban
func BanUser(c *gin.Context) {
	actor := httpx.ActorFrom(c)
	banned := c.Request.Method != http.MethodDelete

	if err := SetBanned(c.Request.Context(), actor, c.Param("id"), banned); err != nil {
		apperr.Respond(c, err)
		return
	}

	logs.LogJSON("INFO", "User ban state changed", map[string]interface{}{
		"route":    c.FullPath(),
		"userID":   actor.UserID,
		"targetID": c.Param("id"),
		"banned":   banned,
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "is_banned": banned})
}
