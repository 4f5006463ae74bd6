package httpx

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/tanakadamon1/castchat-sub000/internal/permission"
)

func newContext(target string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	return c
}

func TestActorFrom(t *testing.T) {
	c := newContext("/")
	assert.Equal(t, permission.Guest(), ActorFrom(c))

	SetActor(c, "u1", permission.RoleModerator)
	assert.Equal(t, permission.Actor{UserID: "u1", Role: permission.RoleModerator}, ActorFrom(c))
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query string
		want  Page
	}{
		{"/", Page{Page: 1, Limit: 20, Offset: 0}},
		{"/?page=3&limit=10", Page{Page: 3, Limit: 10, Offset: 20}},
		{"/?page=0&limit=500", Page{Page: 1, Limit: 50, Offset: 0}},
		{"/?page=abc&limit=-1", Page{Page: 1, Limit: 20, Offset: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePage(newContext(tt.query)))
		})
	}
}
