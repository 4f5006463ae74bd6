package category

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
)

// ListCategories GET /api/categories
func ListCategories(c *gin.Context) {
	categories, err := List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// GetCategory GET /api/categories/:slug
func GetCategory(c *gin.Context) {
	cat, err := GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// CreateCategory POST /api/admin/categories
func CreateCategory(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	cat, err := Create(c.Request.Context(), httpx.ActorFrom(c), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

// UpdateCategory PATCH /api/admin/categories/:id
func UpdateCategory(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	cat, err := Update(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}
