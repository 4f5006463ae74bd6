package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/statistics"
)

// GetUserByUsername GET /api/users/:username
func GetUserByUsername(c *gin.Context) {
	u, err := GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if u.IsBanned {
		apperr.Respond(c, apperr.NotFound("user"))
		return
	}

	stats, err := statistics.ForUser(c.Request.Context(), u.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  u.Public(),
		"stats": stats,
	})
}
