package application

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
)

type applyRequest struct {
	Message string `json:"message" binding:"required"`
}

type statusRequest struct {
	Status Status `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// ApplyToPost POST /api/posts/:id/applications
func ApplyToPost(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	a, err := Apply(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), req.Message)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"application": a})
}

// GetEligibility GET /api/posts/:id/eligibility
func GetEligibility(c *gin.Context) {
	e, err := CheckEligibility(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// ListPostApplications GET /api/posts/:id/applications
func ListPostApplications(c *gin.Context) {
	page := httpx.ParsePage(c)
	list, total, err := ListForPost(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), Status(c.Query("status")), page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": list, "total": total, "page": page.Page, "limit": page.Limit})
}

// GetPostApplicationStats GET /api/posts/:id/applications/stats
func GetPostApplicationStats(c *gin.Context) {
	stats, err := Stats(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// ListMyApplications GET /api/applications
func ListMyApplications(c *gin.Context) {
	page := httpx.ParsePage(c)
	list, total, err := ListMine(c.Request.Context(), httpx.ActorFrom(c), Status(c.Query("status")), page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": list, "total": total, "page": page.Page, "limit": page.Limit})
}

// GetApplication GET /api/applications/:id
func GetApplication(c *gin.Context) {
	a, err := Get(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application": a})
}

// UpdateApplicationStatus PATCH /api/applications/:id/status
func UpdateApplicationStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	a, err := UpdateStatus(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), req.Status, req.Note)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application": a})
}
