package report

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
)

// CreateReport POST /api/reports
func CreateReport(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	r, err := Create(c.Request.Context(), httpx.ActorFrom(c), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": r})
}

// GetReports GET /api/admin/reports
func GetReports(c *gin.Context) {
	page := httpx.ParsePage(c)
	f := Filter{
		Status:     Status(c.Query("status")),
		TargetType: TargetType(c.Query("target_type")),
		Reason:     Reason(c.Query("reason")),
	}

	reports, total, err := List(c.Request.Context(), httpx.ActorFrom(c), f, page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "total": total, "page": page.Page, "limit": page.Limit})
}

// ResolveReport PATCH /api/admin/reports/:id
func ResolveReport(c *gin.Context) {
	var in ResolveInput
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	r, err := Resolve(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": r})
}

// DeleteReport DELETE /api/admin/reports/:id
func DeleteReport(c *gin.Context) {
	if err := Delete(c.Request.Context(), httpx.ActorFrom(c), c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "report deleted"})
}

// GetReportStats GET /api/admin/reports/stats
func GetReportStats(c *gin.Context) {
	s, err := GetStats(c.Request.Context(), httpx.ActorFrom(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": s})
}
