package http

import (
	"net/http"
	"strings"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/services"
	"streamfy/pkg/errors"
	"streamfy/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthHandler struct {
	authService services.AuthService
	enabled     bool
}

// NewAuthHandler serves development tokens. There is no user store: any
// valid username gets a token for a fresh user id unless one is supplied.
func NewAuthHandler(authService services.AuthService, enabled bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		enabled:     enabled,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	UserID   string `json:"user_id" binding:"max=64"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	if !h.enabled {
		c.Error(errors.NewForbiddenError("token issuance is disabled"))
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := validation.ValidateUsername(req.Username); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	userID := domain.UserID(req.UserID)
	if userID == "" {
		userID = domain.UserID(uuid.New().String())
	}

	token, err := h.authService.GenerateToken(userID, req.Username)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token").WithCause(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":      userID,
		"username":     req.Username,
		"access_token": token,
	})
}
