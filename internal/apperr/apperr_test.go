package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, code: CodeNotFound},
		{name: "wrapped record not found", err: fmt.Errorf("load post: %w", gorm.ErrRecordNotFound), code: CodeNotFound},
		{name: "deadline", err: context.DeadlineExceeded, code: CodeNetwork},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", Message: "duplicate"}, code: CodeAlreadyExists},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, code: CodeValidation},
		{name: "rls", err: &pgconn.PgError{Code: "42501"}, code: CodePermissionDenied},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, code: CodeConflict},
		{name: "connection class", err: &pgconn.PgError{Code: "08006"}, code: CodeNetwork},
		{name: "unmapped pg code", err: &pgconn.PgError{Code: "XX000"}, code: CodeDatabase},
		{name: "postgrest single row", err: errors.New("PGRST116: JSON object requested, multiple (or no) rows returned"), code: CodeNotFound},
		{name: "jwt expired", err: errors.New("JWT expired"), code: CodeUnauthorized},
		{name: "rate limit", err: errors.New("Email rate limit exceeded"), code: CodeRateLimited},
		{name: "dial refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), code: CodeNetwork},
		{name: "duplicate text", err: errors.New(`ERROR: duplicate key value violates unique constraint "favorites_pkey"`), code: CodeAlreadyExists},
		{name: "unknown", err: errors.New("boom"), code: CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, nil)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestClassifyPassthroughKeepsCode(t *testing.T) {
	original := Validation("title is too short")

	got := Classify(fmt.Errorf("create post: %w", original), map[string]interface{}{"postID": "p1"})

	assert.Equal(t, CodeValidation, got.Code)
	assert.Equal(t, "title is too short", got.Message)
	assert.Equal(t, "p1", got.Context["postID"])
	assert.Nil(t, original.Context, "original must not be mutated")
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, nil))
	assert.False(t, Is(nil, CodeNotFound))
	assert.True(t, Is(gorm.ErrRecordNotFound, CodeNotFound))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, CodeValidation.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, CodePermissionDenied.HTTPStatus())
	assert.Equal(t, http.StatusConflict, CodeAlreadyExists.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, CodeRateLimited.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeUnknown.HTTPStatus())
}

func TestRing(t *testing.T) {
	r := NewRing(3)
	assert.Empty(t, r.Recent(10))

	for i := 0; i < 5; i++ {
		r.Add(New(CodeUnknown, fmt.Sprintf("e%d", i)))
	}

	assert.Equal(t, 3, r.Len())
	recent := r.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "e4", recent[0].Message)
	assert.Equal(t, "e3", recent[1].Message)
	assert.Equal(t, "e2", recent[2].Message)

	assert.Len(t, r.Recent(1), 1)

	r.Clear()
	assert.Equal(t, 0, r.Len())
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Recorder.Clear()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/posts/x", nil)
	c.Set("user_id", "u1")

	Respond(c, NotFound("post"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
	assert.Contains(t, w.Body.String(), "post not found")
	assert.True(t, c.IsAborted())
	assert.Equal(t, 1, Recorder.Len())
}

func TestRespondHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Respond(c, errors.New("pq: secret internal detail"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret internal detail")
}
