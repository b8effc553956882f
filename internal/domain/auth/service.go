package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hivepos/internal/core/apperror"
	"hivepos/pkg/logger"
)

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	MaxLoginAttempts int
	LockDuration     time.Duration
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxLoginAttempts: 5,
		LockDuration:     15 * time.Minute,
	}
}

// Service handles operator authentication.
type Service struct {
	repo       OperatorRepository
	jwtService *JWTService
	config     ServiceConfig
	now        func() time.Time
}

// NewService creates a new auth service.
func NewService(repo OperatorRepository, jwtService *JWTService, config ServiceConfig) *Service {
	return &Service{
		repo:       repo,
		jwtService: jwtService,
		config:     config,
		now:        time.Now,
	}
}

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", apperror.NewValidation("password must be at least 8 characters").WithDetail("field", "password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CreateOperator registers an operator with a hashed password.
func (s *Service) CreateOperator(ctx context.Context, email, password, fullName string, roles []string) (*Operator, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	op := NewOperator(email, hash, fullName, roles)
	if err := op.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, op); err != nil {
		return nil, err
	}

	logger.Info(ctx, "operator created", "operator_id", op.ID, "email", op.Email)
	return op, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Token, *Operator, error) {
	now := s.now()

	op, err := s.repo.GetByEmail(ctx, NormalizeEmail(creds.Email))
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewUnauthorized("invalid credentials")
		}
		return nil, nil, err
	}
	if err := op.CanLogin(now); err != nil {
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(creds.Password)); err != nil {
		op.RecordFailedLogin(now, s.config.MaxLoginAttempts, s.config.LockDuration)
		if err := s.repo.UpdateLoginState(ctx, op); err != nil {
			logger.Warn(ctx, "failed to record login failure", "operator_id", op.ID, "error", err)
		}
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}

	accessToken, expiresAt, err := s.jwtService.IssueFor(op)
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}

	op.RecordSuccessfulLogin(now)
	if err := s.repo.UpdateLoginState(ctx, op); err != nil {
		logger.Warn(ctx, "failed to record login", "operator_id", op.ID, "error", err)
	}

	logger.Info(ctx, "operator logged in", "operator_id", op.ID, "email", op.Email)

	return &Token{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		TokenType:   "Bearer",
	}, op, nil
}
