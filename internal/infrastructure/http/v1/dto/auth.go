package dto

import (
	"context"
	"time"

	appctx "hivepos/internal/core/context"
	"hivepos/internal/domain/auth"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse answers a successful login.
type SessionResponse struct {
	AccessToken string         `json:"accessToken"`
	TokenType   string         `json:"tokenType"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Operator    *auth.Operator `json:"operator"`
}

// NewSessionResponse flattens the issued token next to its operator.
func NewSessionResponse(token *auth.Token, op *auth.Operator) SessionResponse {
	return SessionResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt,
		Operator:    op,
	}
}

// WhoAmIResponse describes the operator behind the bearer token.
type WhoAmIResponse struct {
	OperatorID string   `json:"operatorId"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	Admin      bool     `json:"admin"`
}

// NewWhoAmIResponse builds the response from the operator in ctx.
func NewWhoAmIResponse(ctx context.Context, u *appctx.UserContext) WhoAmIResponse {
	return WhoAmIResponse{
		OperatorID: u.UserID,
		Email:      u.Email,
		Roles:      u.Roles,
		Admin:      appctx.IsAdmin(ctx),
	}
}
