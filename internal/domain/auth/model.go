// Package auth provides operator authentication: bcrypt login and JWT access tokens.
package auth

import (
	"context"
	"net/mail"
	"slices"
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
)

// Operator is a person allowed to use the back office or the till.
type Operator struct {
	ID                  id.ID      `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	FullName            string     `db:"full_name" json:"fullName,omitempty"`
	Roles               []string   `db:"roles" json:"roles"`
	IsActive            bool       `db:"is_active" json:"isActive"`
	FailedLoginAttempts int        `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time `db:"locked_until" json:"-"`
	LastLoginAt         *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
}

// NewOperator creates an active operator.
func NewOperator(email, passwordHash, fullName string, roles []string) *Operator {
	return &Operator{
		ID:           id.New(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		FullName:     fullName,
		Roles:        roles,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates operator data.
func (o *Operator) Validate(ctx context.Context) error {
	if o.Email == "" {
		return apperror.NewValidation("email is required").WithDetail("field", "email")
	}
	if _, err := mail.ParseAddress(o.Email); err != nil {
		return apperror.NewValidation("email is invalid").WithDetail("field", "email")
	}
	if len(o.Roles) == 0 {
		return apperror.NewValidation("at least one role is required").WithDetail("field", "roles")
	}
	for _, r := range o.Roles {
		if r != appctx.RoleAdmin && r != appctx.RoleUser {
			return apperror.NewValidation("unknown role").WithDetail("role", r)
		}
	}
	return nil
}

// IsAdmin reports whether the operator carries the admin role.
func (o *Operator) IsAdmin() bool {
	return slices.Contains(o.Roles, appctx.RoleAdmin)
}

// IsLocked returns true if the account is temporarily locked.
func (o *Operator) IsLocked(now time.Time) bool {
	return o.LockedUntil != nil && now.Before(*o.LockedUntil)
}

// CanLogin checks if the operator can log in.
func (o *Operator) CanLogin(now time.Time) error {
	if !o.IsActive {
		return apperror.NewForbidden("account is disabled")
	}
	if o.IsLocked(now) {
		return apperror.NewForbidden("account is temporarily locked")
	}
	return nil
}

// RecordFailedLogin increments the failure counter and locks after maxAttempts.
func (o *Operator) RecordFailedLogin(now time.Time, maxAttempts int, lockDuration time.Duration) {
	o.FailedLoginAttempts++
	if maxAttempts > 0 && o.FailedLoginAttempts >= maxAttempts {
		until := now.Add(lockDuration)
		o.LockedUntil = &until
		o.FailedLoginAttempts = 0
	}
}

// RecordSuccessfulLogin resets the failure counter.
func (o *Operator) RecordSuccessfulLogin(now time.Time) {
	o.FailedLoginAttempts = 0
	o.LockedUntil = nil
	o.LastLoginAt = &now
}

// Credentials is a login attempt.
type Credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TokenType   string    `json:"tokenType"`
}
