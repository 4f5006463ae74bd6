package statistics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
)

// GetPlatformStats GET /api/stats
func GetPlatformStats(c *gin.Context) {
	stats, err := Platform(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetCategoryStats GET /api/stats/categories
func GetCategoryStats(c *gin.Context) {
	stats, err := ByCategory(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": stats})
}

// GetMyStats GET /api/me/stats
func GetMyStats(c *gin.Context) {
	actor := httpx.ActorFrom(c)
	stats, err := ForUser(c.Request.Context(), actor.UserID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetPostStats GET /api/posts/:id/stats
func GetPostStats(c *gin.Context) {
	stats, err := ForPost(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetAdminStats GET /api/admin/stats
func GetAdminStats(c *gin.Context) {
	stats, err := Admin(c.Request.Context(), httpx.ActorFrom(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetTimeline GET /api/admin/stats/timeline?start_date=&end_date=
func GetTimeline(c *gin.Context) {
	from, to, err := ParseRange(c.Query("start_date"), c.Query("end_date"), time.Now())
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	days, err := Timeline(c.Request.Context(), httpx.ActorFrom(c), from, to)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// GetTopHosts GET /api/admin/stats/top-hosts?limit=
func GetTopHosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	top, err := Top(c.Request.Context(), httpx.ActorFrom(c), limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, top)
}
