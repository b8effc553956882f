// Package context carries the authenticated operator and trace ids through a request.
package context

import (
	"context"
	"slices"

	"hivepos/internal/core/apperror"
)

// Operator roles. Admins run imports, rollbacks and stock corrections;
// users sell and refund.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// UserContext is the operator behind a request, as read from the access token.
type UserContext struct {
	UserID  string
	Email   string
	Roles   []string
	IsAdmin bool
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// Actor returns the operator id for created_by columns, or nil for system work.
func Actor(ctx context.Context) *string {
	if userID := GetUserID(ctx); userID != "" {
		return &userID
	}
	return nil
}

// HasRole checks if user has specific role.
func HasRole(ctx context.Context, role string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// IsAdmin reports whether the caller is flagged admin or carries the admin role.
func IsAdmin(ctx context.Context) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return u.IsAdmin || slices.Contains(u.Roles, RoleAdmin)
}

// RequireAdmin returns a forbidden error naming action unless the caller is an admin.
func RequireAdmin(ctx context.Context, action string) error {
	if IsAdmin(ctx) {
		return nil
	}
	return apperror.NewForbidden(action + " requires admin").WithDetail("action", action)
}
