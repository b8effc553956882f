package handlers

import (
	"github.com/gin-gonic/gin"

	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/domain/auth"
	"hivepos/internal/infrastructure/http/v1/dto"
)

// AuthHandler serves operator login and the token introspection endpoint.
type AuthHandler struct {
	*BaseHandler
	service *auth.Service
}

func NewAuthHandler(base *BaseHandler, service *auth.Service) *AuthHandler {
	return &AuthHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts login on public and /me on protected.
func (h *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/login", h.Login)
	protected.GET("/me", h.Me)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	creds := auth.Credentials{Email: req.Email, Password: req.Password}
	token, op, err := h.service.Login(c.Request.Context(), creds)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewSessionResponse(token, op))
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	u := appctx.GetUser(ctx)
	if u == nil {
		h.Error(c, apperror.NewUnauthorized("not authenticated"))
		return
	}
	h.OK(c, dto.NewWhoAmIResponse(ctx, u))
}
