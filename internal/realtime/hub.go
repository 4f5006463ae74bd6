// Package realtime pushes unread counts to browsers over websockets.
package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/unread"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

const TypeUnreadCounts = "unread_counts"

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks open connections per user.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	unread   *unread.Manager
}

// NewHub registers the hub as a watcher of m. allowedOrigin is the web
// app's origin; requests without an Origin header are accepted.
func NewHub(m *unread.Manager, allowedOrigin string) *Hub {
	h := &Hub{
		clients: make(map[string]map[*client]struct{}),
		unread:  m,
	}
	allowedOrigin = strings.TrimRight(allowedOrigin, "/")
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedOrigin == "" || origin == allowedOrigin
		},
	}
	if m != nil {
		m.Watch(h)
	}
	return h
}

func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) PushCounts(userID string, c unread.Counts) {
	h.SendToUser(userID, Message{Type: TypeUnreadCounts, Data: c})
}

// SendToUser queues msg on every connection of the user. Slow clients
// whose buffer is full are dropped.
func (h *Hub) SendToUser(userID string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	var slow []*client
	for cl := range h.clients[userID] {
		select {
		case cl.send <- payload:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.unregister(cl)
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[cl.userID] == nil {
		h.clients[cl.userID] = make(map[*client]struct{})
	}
	h.clients[cl.userID][cl] = struct{}{}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[cl.userID]
	if !ok {
		return
	}
	if _, ok := conns[cl]; !ok {
		return
	}
	delete(conns, cl)
	close(cl.send)
	if len(conns) == 0 {
		delete(h.clients, cl.userID)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		for cl := range conns {
			close(cl.send)
		}
		delete(h.clients, userID)
	}
}

// ServeWS GET /ws?access_token=... (behind the auth middleware)
func (h *Hub) ServeWS(c *gin.Context) {
	actor := httpx.ActorFrom(c)
	if !actor.Can(permission.NotificationRead) {
		apperr.Respond(c, apperr.Unauthorized("please sign in"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.LogJSON("WARN", "Websocket upgrade failed", map[string]interface{}{
			"userID": actor.UserID,
			"error":  err.Error(),
		})
		return
	}

	cl := &client{userID: actor.UserID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(cl)
	go h.writePump(cl)
	go h.readPump(cl)

	if h.unread != nil {
		counts, err := h.unread.Get(c.Request.Context(), actor.UserID)
		if err == nil {
			h.PushCounts(actor.UserID, counts)
		}
	}
}

// readPump only handles control frames; clients do not send data.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.unregister(cl)
		_ = cl.conn.Close()
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
