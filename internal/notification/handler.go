package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

// VAPIDPublicKey is handed to browsers that want to subscribe.
var VAPIDPublicKey string

// reader returns the caller's id, or responds and returns false when the
// caller may not read notifications.
func reader(c *gin.Context) (string, bool) {
	actor := httpx.ActorFrom(c)
	if !actor.Can(permission.NotificationRead) {
		apperr.Respond(c, apperr.Unauthorized("please sign in"))
		return "", false
	}
	return actor.UserID, true
}

// ListNotifications GET /api/notifications?unread=true
func ListNotifications(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}
	page := httpx.ParsePage(c)

	list, total, err := List(c.Request.Context(), userID, c.Query("unread") == "true", page)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "total": total, "page": page.Page, "limit": page.Limit})
}

// GetUnreadCount GET /api/notifications/unread-count
func GetUnreadCount(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}
	count, err := UnreadCount(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkNotificationRead POST /api/notifications/:id/read
func MarkNotificationRead(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}
	if err := MarkRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

// MarkAllNotificationsRead POST /api/notifications/read-all
func MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}
	n, err := MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// DeleteNotification DELETE /api/notifications/:id
func DeleteNotification(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}
	if err := Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification deleted"})
}

// GetNotificationSettings GET /api/notifications/settings
func GetNotificationSettings(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}
	s, err := GetSettings(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateNotificationSettings PATCH /api/notifications/settings
func UpdateNotificationSettings(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}

	var in SettingsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	s, err := UpdateSettings(c.Request.Context(), userID, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GetVAPIDKey GET /api/push/vapid-key
func GetVAPIDKey(c *gin.Context) {
	if VAPIDPublicKey == "" {
		apperr.Respond(c, apperr.NotFound("push configuration"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": VAPIDPublicKey})
}

// RegisterPushSubscription POST /api/push/subscriptions
func RegisterPushSubscription(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}

	var in PushInput
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "endpoint and keys are required"))
		return
	}

	sub, err := RegisterPush(c.Request.Context(), userID, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sub.ID})
}

// UnregisterPushSubscription DELETE /api/push/subscriptions
func UnregisterPushSubscription(c *gin.Context) {
	userID, ok := reader(c)
	if !ok {
		return
	}

	var body struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "endpoint is required"))
		return
	}

	if err := UnregisterPush(c.Request.Context(), userID, body.Endpoint); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "push subscription removed"})
}
