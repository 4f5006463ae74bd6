package post

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

func bindInput(c *gin.Context) (Input, bool) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return in, false
	}
	return in, true
}

// CreatePost POST /api/posts
func CreatePost(c *gin.Context) {
	in, ok := bindInput(c)
	if !ok {
		return
	}

	p, err := Create(c.Request.Context(), httpx.ActorFrom(c), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": p})
}

// UpdatePost PATCH /api/posts/:id
func UpdatePost(c *gin.Context) {
	in, ok := bindInput(c)
	if !ok {
		return
	}

	p, err := Update(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

// DeletePost DELETE /api/posts/:id
func DeletePost(c *gin.Context) {
	if err := Delete(c.Request.Context(), httpx.ActorFrom(c), c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

// GetPost GET /api/posts/:id
func GetPost(c *gin.Context) {
	p, err := Get(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

// ClosePost POST /api/posts/:id/close
func ClosePost(c *gin.Context) {
	p, err := Close(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

// ReopenPost POST /api/posts/:id/reopen
func ReopenPost(c *gin.Context) {
	p, err := Reopen(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

// ListMyPosts GET /api/me/posts
func ListMyPosts(c *gin.Context) {
	page := httpx.ParsePage(c)
	posts, total, err := ListMine(c.Request.Context(), httpx.ActorFrom(c), page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "total": total, "page": page.Page, "limit": page.Limit})
}

// ListUserPosts GET /api/users/:username/posts
func ListUserPosts(c *gin.Context) {
	u, err := user.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	page := httpx.ParsePage(c)
	posts, total, err := ListByUser(c.Request.Context(), u.ID, page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "total": total, "page": page.Page, "limit": page.Limit})
}

// SearchPosts GET /api/posts
func SearchPosts(c *gin.Context) {
	page := httpx.ParsePage(c)
	params := SearchParams{
		Query:       c.Query("q"),
		Category:    c.Query("category"),
		Platform:    c.Query("platform"),
		Language:    c.Query("language"),
		Status:      Status(c.Query("status")),
		HasDeadline: c.Query("has_deadline") == "true",
		Sort:        c.Query("sort"),
		Page:        page.Page,
		Limit:       page.Limit,
	}
	if tags := c.Query("tags"); tags != "" {
		params.Tags = strings.Split(tags, ",")
	}

	result, err := Search(c.Request.Context(), params)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadPostImage POST /api/posts/:id/images (multipart field "image")
func UploadPostImage(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "no image provided"))
		return
	}
	defer file.Close()

	img, err := UploadImage(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), header.Filename, header.Size, file)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"image": img})
}

// DeletePostImage DELETE /api/posts/:id/images/:imageId
func DeletePostImage(c *gin.Context) {
	if err := DeleteImage(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), c.Param("imageId")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "image deleted"})
}

// ReorderPostImages PUT /api/posts/:id/images/order
func ReorderPostImages(c *gin.Context) {
	var body struct {
		ImageIDs []string `json:"image_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "image_ids is required"))
		return
	}

	if err := ReorderImages(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), body.ImageIDs); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "images reordered"})
}
