package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// AuthHandler issues operator tokens
type AuthHandler struct {
	authService *service.AuthService
	log         *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// Token exchanges operator credentials for a JWT
// POST /auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	var req service.LoginRequest
	if err := bindInput(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}

	token, err := h.authService.Login(&req)
	if err != nil {
		h.log.Warn("operator login failed", zap.String("username", req.Username), zap.Error(err))
		respondError(c, h.log, err)
		return
	}

	response.Success(c, token)
}

// RegisterRoutes registers auth routes
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.Token)
}
