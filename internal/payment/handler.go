package payment

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
)

const maxWebhookBody = int64(65536)

// ListPackages GET /api/payments/packages
func ListPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": Packages()})
}

type checkoutRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

// CreateCheckoutSession POST /api/payments/checkout
func CreateCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	url, err := CreateCheckout(c.Request.Context(), httpx.ActorFrom(c), req.PackageID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// GetBalance GET /api/payments/balance
func GetBalance(c *gin.Context) {
	coins, err := Balance(c.Request.Context(), httpx.ActorFrom(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins})
}

// ListTransactions GET /api/payments/transactions
func ListTransactions(c *gin.Context) {
	page := httpx.ParsePage(c)
	list, total, err := Transactions(c.Request.Context(), httpx.ActorFrom(c), page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": list, "total": total, "page": page.Page, "limit": page.Limit})
}

// HandleStripeWebhook POST /api/payments/webhook
func HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "could not read body"))
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logs.LogJSON("WARN", "Invalid Stripe signature", map[string]interface{}{"error": err.Error()})
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid signature"))
		return
	}

	if err := HandleEvent(c.Request.Context(), event); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
