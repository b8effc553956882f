package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivepos/internal/app"
	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/domain/auth"
	"hivepos/internal/infrastructure/storage/memory"
)

func newServices(t *testing.T) *app.Services {
	t.Helper()
	return app.NewServices(app.MemoryRepositories(memory.New()), app.Options{
		JWTSecret: "test-secret",
		Auth:      auth.ServiceConfig{MaxLoginAttempts: 3, LockDuration: time.Hour},
	})
}

func TestLogin_IssuesTokenCarryingRoles(t *testing.T) {
	svc := newServices(t)
	ctx := context.Background()

	op, err := svc.Auth.CreateOperator(ctx, " Admin@Hive.test ", "correct-horse", "Hive Admin", []string{appctx.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "admin@hive.test", op.Email)
	assert.NotEqual(t, "correct-horse", op.PasswordHash)

	token, got, err := svc.Auth.Login(ctx, auth.Credentials{Email: "ADMIN@hive.test", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, op.ID, got.ID)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.True(t, token.ExpiresAt.After(time.Now()))

	user, err := svc.JWT.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, op.ID.String(), user.UserID)
	assert.Equal(t, "admin@hive.test", user.Email)
	assert.True(t, user.IsAdmin)
}

func TestLogin_WrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	svc := newServices(t)
	ctx := context.Background()
	_, err := svc.Auth.CreateOperator(ctx, "clerk@hive.test", "correct-horse", "Clerk", []string{appctx.RoleUser})
	require.NoError(t, err)

	_, _, wrong := svc.Auth.Login(ctx, auth.Credentials{Email: "clerk@hive.test", Password: "battery-staple"})
	_, _, unknown := svc.Auth.Login(ctx, auth.Credentials{Email: "nobody@hive.test", Password: "battery-staple"})

	assert.True(t, apperror.HasCode(wrong, apperror.CodeUnauthorized))
	assert.True(t, apperror.HasCode(unknown, apperror.CodeUnauthorized))
	assert.Equal(t, wrong.Error(), unknown.Error())
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	svc := newServices(t)
	ctx := context.Background()
	_, err := svc.Auth.CreateOperator(ctx, "clerk@hive.test", "correct-horse", "Clerk", []string{appctx.RoleUser})
	require.NoError(t, err)

	for range 3 {
		_, _, err := svc.Auth.Login(ctx, auth.Credentials{Email: "clerk@hive.test", Password: "nope-nope"})
		require.Error(t, err)
	}

	_, _, err = svc.Auth.Login(ctx, auth.Credentials{Email: "clerk@hive.test", Password: "correct-horse"})
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
}

func TestCreateOperator_Validation(t *testing.T) {
	svc := newServices(t)
	ctx := context.Background()

	_, err := svc.Auth.CreateOperator(ctx, "a@hive.test", "short", "A", []string{appctx.RoleUser})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.Auth.CreateOperator(ctx, "not-an-email", "long-enough", "A", []string{appctx.RoleUser})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.Auth.CreateOperator(ctx, "a@hive.test", "long-enough", "A", []string{"root"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.Auth.CreateOperator(ctx, "a@hive.test", "long-enough", "A", []string{appctx.RoleUser})
	require.NoError(t, err)
	_, err = svc.Auth.CreateOperator(ctx, "A@hive.test", "long-enough", "A", []string{appctx.RoleUser})
	assert.True(t, apperror.IsDuplicate(err))
}

func TestValidateToken_RejectsForeignSignatures(t *testing.T) {
	issuer := auth.NewJWTService(auth.DefaultJWTConfig("one-secret"))
	verifier := auth.NewJWTService(auth.DefaultJWTConfig("other-secret"))

	op := auth.NewOperator("u1@hive.test", "hash", "U1", []string{appctx.RoleUser})
	token, _, err := issuer.IssueFor(op)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)

	user, err := issuer.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, op.ID.String(), user.UserID)
	assert.False(t, user.IsAdmin)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "iss": "hivepos", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.ValidateToken(unsigned)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := auth.NewJWTService(auth.DefaultJWTConfig("secret"))

	past := time.Now().Add(-time.Hour)
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "hivepos",
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
