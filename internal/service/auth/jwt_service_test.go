package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwatch/plantdata-api/internal/config"
	"github.com/plantwatch/plantdata-api/internal/domain"
)

const testSecret = "test-secret-that-is-long-enough-32"

func newTestService(t *testing.T) *hmacJWTService {
	t.Helper()
	svc, err := NewJWTService(config.AuthConfig{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)
	return svc.(*hmacJWTService)
}

func testUser() *domain.User {
	return &domain.User{
		ID:             uuid.New(),
		Email:          "operator@plantwatch.example",
		HashedPassword: "irrelevant",
		Role:           domain.RoleUser,
	}
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short", TokenTTL: time.Hour})
	require.Error(t, err)
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := testUser()

	token, err := svc.GenerateToken(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	caller, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, caller.ID)
	assert.Equal(t, domain.RoleUser, caller.Role)
}

func TestValidateTokenCarriesAdminRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := testUser()
	admin.Role = domain.RoleAdmin

	token, err := svc.GenerateToken(ctx, admin)
	require.NoError(t, err)

	caller, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, caller.Admin())
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Issue in the past, validate in the present.
	issued := time.Now().Add(-2 * time.Hour)
	svc.timeFunc = func() time.Time { return issued }
	token, err := svc.GenerateToken(ctx, testUser())
	require.NoError(t, err)

	svc.timeFunc = time.Now
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, testUser())
	require.NoError(t, err)

	other, err := NewJWTService(config.AuthConfig{
		JWTSecret: "a-completely-different-signing-key-00",
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)

	_, err = other.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ValidateToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBcryptVerifierRoundTrip(t *testing.T) {
	v := NewBcryptVerifier()

	hash, err := v.Hash("a-long-enough-password")
	require.NoError(t, err)
	require.NotEqual(t, "a-long-enough-password", hash)

	assert.NoError(t, v.Compare(hash, "a-long-enough-password"))
	assert.Error(t, v.Compare(hash, "a-wrong-password-entirely"))
}
