// Package unread caches per-user unread counts and refreshes them when
// domain events or database changes touch a user.
package unread

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/events"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

const (
	DefaultTTL  = 30 * time.Second
	DefaultSize = 10000
)

type Counts struct {
	Notifications int64 `json:"notifications"`
	Messages      int64 `json:"messages"`
	Applications  int64 `json:"applications"`
	Total         int64 `json:"total"`
}

// Counter loads fresh counts for a user.
type Counter func(ctx context.Context, userID string) (Counts, error)

// Watcher receives fresh counts for users it reports as interested.
type Watcher interface {
	Online(userID string) bool
	PushCounts(userID string, c Counts)
}

type Manager struct {
	cache *expirable.LRU[string, Counts]
	count Counter

	mu       sync.RWMutex
	watchers []Watcher
}

func NewManager(ttl time.Duration, size int, count Counter) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if size <= 0 {
		size = DefaultSize
	}
	if count == nil {
		count = CountFromDB
	}
	return &Manager{
		cache: expirable.NewLRU[string, Counts](size, nil, ttl),
		count: count,
	}
}

// Get serves cached counts younger than the TTL and loads them otherwise.
func (m *Manager) Get(ctx context.Context, userID string) (Counts, error) {
	if c, ok := m.cache.Get(userID); ok {
		return c, nil
	}

	c, err := m.count(ctx, userID)
	if err != nil {
		return Counts{}, err
	}
	m.cache.Add(userID, c)
	return c, nil
}

func (m *Manager) Watch(w Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, w)
}

// Invalidate drops the cached entry and pushes fresh counts to watchers
// that have the user online.
func (m *Manager) Invalidate(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	m.cache.Remove(userID)

	m.mu.RLock()
	var online []Watcher
	for _, w := range m.watchers {
		if w.Online(userID) {
			online = append(online, w)
		}
	}
	m.mu.RUnlock()
	if len(online) == 0 {
		return
	}

	c, err := m.Get(ctx, userID)
	if err != nil {
		logs.LogJSON("WARN", "Failed to refresh unread counts", map[string]interface{}{
			"userID": userID,
			"error":  err.Error(),
		})
		return
	}
	for _, w := range online {
		w.PushCounts(userID, c)
	}
}

func (m *Manager) Len() int {
	return m.cache.Len()
}

// Subscribe invalidates every user named by an event on bus.
func (m *Manager) Subscribe(bus *events.Bus) {
	bus.Subscribe("*", func(ctx context.Context, e events.Event) {
		seen := make(map[string]bool, len(e.UserIDs))
		for _, id := range e.UserIDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			m.Invalidate(ctx, id)
		}
	})
}

// CountFromDB runs the unread notification, unread message and pending
// application counts in one round trip.
func CountFromDB(ctx context.Context, userID string) (Counts, error) {
	var c Counts
	err := database.DB.WithContext(ctx).Raw(`SELECT
		(SELECT count(*) FROM notifications WHERE user_id = @user AND NOT is_read) AS notifications,
		(SELECT count(*) FROM messages WHERE receiver_id = @user AND NOT is_read) AS messages,
		(SELECT count(*) FROM applications a JOIN posts p ON p.id = a.post_id
			WHERE p.user_id = @user AND a.status = 'pending') AS applications`,
		map[string]interface{}{"user": userID}).Scan(&c).Error
	if err != nil {
		return Counts{}, err
	}
	c.Total = c.Notifications + c.Messages + c.Applications
	return c, nil
}

// Handler serves GET /api/me/unread.
func (m *Manager) Handler(c *gin.Context) {
	actor := httpx.ActorFrom(c)
	if !actor.Can(permission.NotificationRead) {
		apperr.Respond(c, apperr.Unauthorized("please sign in"))
		return
	}
	counts, err := m.Get(c.Request.Context(), actor.UserID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
