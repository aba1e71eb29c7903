package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paperchat/internal/app"
	"paperchat/internal/transport/http/middleware"
	"paperchat/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	// EducationLevel seeds the account default used by new explanation
	// sessions; unknown values fall back to undergraduate.
	EducationLevel string `json:"education_level"`
}

type LoginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type EducationLevelRequest struct {
	EducationLevel string `json:"education_level" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Register(app.RegisterInput{
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		EducationLevel: req.EducationLevel,
	})
	if err != nil {
		response.ServiceError(c, err, "register failed")
		return
	}

	response.OK(c, gin.H{"token": result.Token, "user": result.User})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Login:    req.Login,
		Password: req.Password,
	})
	if err != nil {
		response.ServiceError(c, err, "login failed")
		return
	}

	response.OK(c, gin.H{"token": result.Token, "user": result.User})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	user, err := h.authService.GetUserByID(userID)
	if err != nil || user == nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
		return
	}
	response.OK(c, user)
}

// UpdateEducationLevel changes the account default and returns a fresh
// token, since the level is carried in the token claims.
func (h *AuthHandler) UpdateEducationLevel(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req EducationLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.SetEducationLevel(userID, req.EducationLevel)
	if err != nil {
		response.ServiceError(c, err, "update education level failed")
		return
	}

	response.OK(c, gin.H{"token": result.Token, "user": result.User})
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := raw.(uint)
	return userID, ok
}

// getEducationLevelFromContext reads the default level claim set by the
// auth middleware; empty when the token predates the claim.
func getEducationLevelFromContext(c *gin.Context) string {
	raw, exists := c.Get(middleware.ContextEducationLevelKey)
	if !exists {
		return ""
	}
	level, _ := raw.(string)
	return level
}
