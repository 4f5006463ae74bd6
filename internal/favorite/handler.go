package favorite

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
)

// AddFavorite POST /api/posts/:id/favorite
func AddFavorite(c *gin.Context) {
	if err := Add(c.Request.Context(), httpx.ActorFrom(c), c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorited": true})
}

// RemoveFavorite DELETE /api/posts/:id/favorite
func RemoveFavorite(c *gin.Context) {
	if err := Remove(c.Request.Context(), httpx.ActorFrom(c), c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorited": false})
}

// CheckFavorite GET /api/posts/:id/favorite
func CheckFavorite(c *gin.Context) {
	ok, err := Check(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorited": ok})
}

// ListFavorites GET /api/me/favorites
func ListFavorites(c *gin.Context) {
	page := httpx.ParsePage(c)
	posts, total, err := List(c.Request.Context(), httpx.ActorFrom(c), page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "total": total, "page": page.Page, "limit": page.Limit})
}
