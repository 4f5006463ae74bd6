package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
)

// Client talks to the Supabase Auth (GoTrue) REST API.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	UserID       string `json:"user_id"`
}

func NewClient(baseURL, anonKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SignUp registers credentials and returns the new auth user id. The session
// is nil when the project requires email confirmation.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, *Session, error) {
	body, err := c.post(ctx, "/auth/v1/signup", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", nil, err
	}

	userID := gjson.GetBytes(body, "user.id").String()
	if userID == "" {
		userID = gjson.GetBytes(body, "id").String()
	}
	if userID == "" {
		return "", nil, apperr.New(apperr.CodeUnknown, "auth provider returned no user id")
	}
	return userID, parseSession(body), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body, err := c.post(ctx, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	return requireSession(body)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	body, err := c.post(ctx, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	return requireSession(body)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeNetwork, "the auth service is unavailable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeNetwork, "the auth service is unavailable")
	}

	if resp.StatusCode >= 400 {
		return nil, authError(resp.StatusCode, body)
	}
	return body, nil
}

func authError(status int, body []byte) error {
	msg := firstNonEmpty(
		gjson.GetBytes(body, "error_description").String(),
		gjson.GetBytes(body, "msg").String(),
		gjson.GetBytes(body, "message").String(),
		http.StatusText(status),
	)

	cause := fmt.Errorf("supabase auth %d: %s", status, msg)
	switch {
	case status == http.StatusTooManyRequests:
		return apperr.Wrap(cause, apperr.CodeRateLimited, "too many attempts, please wait")
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "invalid login"):
		return apperr.Wrap(cause, apperr.CodeUnauthorized, "invalid email or password")
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return apperr.Wrap(cause, apperr.CodeValidation, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Wrap(cause, apperr.CodeUnauthorized, "authentication failed")
	default:
		return apperr.Wrap(cause, apperr.CodeNetwork, "the auth service returned an error")
	}
}

func parseSession(body []byte) *Session {
	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return nil
	}
	return &Session{
		AccessToken:  token,
		RefreshToken: gjson.GetBytes(body, "refresh_token").String(),
		ExpiresIn:    gjson.GetBytes(body, "expires_in").Int(),
		TokenType:    gjson.GetBytes(body, "token_type").String(),
		UserID:       gjson.GetBytes(body, "user.id").String(),
	}
}

func requireSession(body []byte) (*Session, error) {
	s := parseSession(body)
	if s == nil {
		return nil, apperr.New(apperr.CodeUnknown, "auth provider returned no session")
	}
	return s, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
