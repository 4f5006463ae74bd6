package httpx

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

const (
	userKey = "user_id"
	roleKey = "role"

	DefaultLimit = 20
	MaxLimit     = 50
)

// SetActor stores the authenticated caller on the gin context.
func SetActor(c *gin.Context, userID string, role permission.Role) {
	c.Set(userKey, userID)
	c.Set(roleKey, role)
}

// ActorFrom returns the caller set by the auth middleware, or a guest.
func ActorFrom(c *gin.Context) permission.Actor {
	userID := c.GetString(userKey)
	if userID == "" {
		return permission.Guest()
	}
	role, ok := c.Get(roleKey)
	if !ok {
		return permission.Actor{UserID: userID, Role: permission.RoleUser}
	}
	r, _ := role.(permission.Role)
	return permission.Actor{UserID: userID, Role: r}
}

type Page struct {
	Page   int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// ParsePage reads ?page=&limit= with page >= 1 and limit clamped to [1, MaxLimit].
func ParsePage(c *gin.Context) Page {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if err != nil || limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return NewPage(page, limit)
}

func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit, Offset: (page - 1) * limit}
}
