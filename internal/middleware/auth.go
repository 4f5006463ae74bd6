package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/httpx"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

var (
	errMissingToken = errors.New("missing token")
	errSuspended    = errors.New("account suspended")
)

// ResolveRole looks up the caller's role after the token is verified.
var ResolveRole = user.RoleOf

// ParseToken verifies a Supabase access token (HS256) and returns its subject.
func ParseToken(tokenStr string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// TokenFrom reads the bearer token, falling back to ?access_token= for websockets.
func TokenFrom(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return c.Query("access_token")
}

func authenticate(c *gin.Context, secret []byte) error {
	tokenStr := TokenFrom(c)
	if tokenStr == "" {
		return errMissingToken
	}

	userID, err := ParseToken(tokenStr, secret)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeUnauthorized, "the token is invalid or expired")
	}

	role, err := ResolveRole(c.Request.Context(), userID)
	if err != nil {
		return err
	}
	// Banned and unregistered accounts resolve to guest.
	if role == permission.RoleGuest {
		return errSuspended
	}
	httpx.SetActor(c, userID, role)
	return nil
}

func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if err := authenticate(c, key); err != nil {
			switch {
			case errors.Is(err, errMissingToken):
				err = apperr.Unauthorized("a bearer token is required")
			case errors.Is(err, errSuspended):
				err = apperr.Unauthorized("this account is suspended")
			}
			apperr.Respond(c, err)
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware authenticates when a valid token is present and
// otherwise continues as a guest.
func OptionalAuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if err := authenticate(c, key); err != nil && !errors.Is(err, errMissingToken) {
			logs.LogJSON("DEBUG", "Ignoring invalid optional token", map[string]interface{}{
				"route": c.FullPath(),
				"error": err.Error(),
			})
			httpx.SetActor(c, "", permission.RoleGuest)
		}
		c.Next()
	}
}

// RequirePermission aborts unless the caller's role grants perm.
func RequirePermission(perm permission.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := httpx.ActorFrom(c)
		if actor.Can(perm) {
			c.Next()
			return
		}

		logs.LogJSON("WARN", "Permission denied", map[string]interface{}{
			"route":      c.FullPath(),
			"userID":     actor.UserID,
			"role":       actor.Role,
			"permission": perm,
		})
		if !actor.IsAuthenticated() {
			apperr.Respond(c, apperr.Unauthorized("please sign in"))
			return
		}
		apperr.Respond(c, apperr.Forbidden("you do not have permission to do this"))
	}
}
