package tag

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
)

// ListPopularTags GET /api/tags
func ListPopularTags(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	tags, err := Popular(c.Request.Context(), limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// SearchTags GET /api/tags/search?q=
func SearchTags(c *gin.Context) {
	tags, err := Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// DeleteTag DELETE /api/admin/tags/:id
func DeleteTag(c *gin.Context) {
	if err := Delete(c.Request.Context(), httpx.ActorFrom(c), c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "tag deleted"})
}
