package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/unread"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if id := c.Query("as"); id != "" {
			httpx.SetActor(c, id, permission.RoleUser)
		}
		c.Next()
	}, hub.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestServeWSRequiresAuth(t *testing.T) {
	srv := newTestServer(t, NewHub(nil, ""))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPushesCountsOnConnectAndInvalidate(t *testing.T) {
	var calls int64
	m := unread.NewManager(time.Minute, 10, func(_ context.Context, _ string) (unread.Counts, error) {
		n := atomic.AddInt64(&calls, 1)
		return unread.Counts{Messages: n, Total: n}, nil
	})
	hub := NewHub(m, "")
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "?as=u1")
	assert.JSONEq(t, `{"type":"unread_counts","data":{"notifications":0,"messages":1,"applications":0,"total":1}}`, readMessage(t, conn))

	require.Eventually(t, func() bool { return hub.Online("u1") }, time.Second, 10*time.Millisecond)
	m.Invalidate(context.Background(), "u1")
	assert.JSONEq(t, `{"type":"unread_counts","data":{"notifications":0,"messages":2,"applications":0,"total":2}}`, readMessage(t, conn))
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil, "")
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "?as=u1")
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.Close()
	assert.Eventually(t, func() bool { return !hub.Online("u1") }, 2*time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(nil, "https://castchat.jp/")
	srv := newTestServer(t, hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?as=u1"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://castchat.jp"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}
