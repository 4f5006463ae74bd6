package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

var client *Client

func Init(baseURL, anonKey string) {
	client = NewClient(baseURL, anonKey)
}

type SignupInput struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
}

func (in *SignupInput) Validate() error {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.DisplayName == "" {
		in.DisplayName = in.Username
	}

	if err := user.ValidateEmail(in.Email); err != nil {
		return err
	}
	if err := user.ValidateUsername(in.Username); err != nil {
		return err
	}
	return user.ValidatePassword(in.Password)
}

// Signup POST /api/auth/signup
func Signup(c *gin.Context) {
	ctx := c.Request.Context()

	var input SignupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "email, password and username are required"))
		return
	}
	if err := input.Validate(); err != nil {
		apperr.Respond(c, err)
		return
	}

	if exists, err := user.ExistsByEmail(ctx, input.Email); err != nil {
		apperr.Respond(c, err)
		return
	} else if exists {
		apperr.Respond(c, apperr.New(apperr.CodeAlreadyExists, "email is already registered"))
		return
	}
	if exists, err := user.ExistsByUsername(ctx, input.Username); err != nil {
		apperr.Respond(c, err)
		return
	} else if exists {
		apperr.Respond(c, apperr.New(apperr.CodeAlreadyExists, "username is already taken"))
		return
	}

	userID, session, err := client.SignUp(ctx, input.Email, input.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	newUser := user.User{
		ID:          userID,
		CreatedAt:   time.Now(),
		Username:    input.Username,
		DisplayName: input.DisplayName,
		Email:       input.Email,
		Role:        permission.RoleUser,
	}
	if err := user.Create(ctx, &newUser); err != nil {
		apperr.Respond(c, err)
		return
	}

	logs.LogJSON("INFO", "User signed up", map[string]interface{}{
		"route":  c.FullPath(),
		"userID": userID,
	})

	c.JSON(http.StatusCreated, gin.H{
		"user":    newUser,
		"session": session,
	})
}

// Login POST /api/auth/login
func Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "email and password are required"))
		return
	}

	session, err := client.SignIn(c.Request.Context(), strings.TrimSpace(strings.ToLower(input.Email)), input.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// Refresh POST /api/auth/refresh
func Refresh(c *gin.Context) {
	var input struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.CodeValidation, "refresh_token is required"))
		return
	}

	session, err := client.Refresh(c.Request.Context(), input.RefreshToken)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}
