package message

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

// SendMessage POST /api/applications/:id/messages
func SendMessage(c *gin.Context) {
	var in SendInput
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	m, err := Send(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), in.Content)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": m})
}

// ListMessages GET /api/applications/:id/messages?before=RFC3339&limit=
func ListMessages(c *gin.Context) {
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			apperr.Respond(c, apperr.Validation("before must be an RFC3339 timestamp"))
			return
		}
		before = &t
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))

	msgs, err := List(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"), before, limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkMessagesRead POST /api/applications/:id/messages/read
func MarkMessagesRead(c *gin.Context) {
	n, err := MarkRead(c.Request.Context(), httpx.ActorFrom(c), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// GetConversations GET /api/conversations
func GetConversations(c *gin.Context) {
	convs, err := Conversations(c.Request.Context(), httpx.ActorFrom(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetUnreadMessageCount GET /api/messages/unread-count
func GetUnreadMessageCount(c *gin.Context) {
	actor := httpx.ActorFrom(c)
	if !actor.Can(permission.MessageRead) {
		apperr.Respond(c, apperr.Unauthorized("please sign in"))
		return
	}
	n, err := UnreadCount(c.Request.Context(), actor.UserID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}
