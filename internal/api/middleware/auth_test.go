package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwatch/plantdata-api/internal/api/middleware"
	"github.com/plantwatch/plantdata-api/internal/config"
	"github.com/plantwatch/plantdata-api/internal/domain"
	"github.com/plantwatch/plantdata-api/internal/service/auth"
)

func setupAuth(t *testing.T) (*middleware.AuthMiddleware, auth.JWTService) {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret: "test-secret-that-is-long-enough-32",
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)

	return middleware.NewAuthMiddleware(jwtService), jwtService
}

func TestAuthenticatePassesCallerThrough(t *testing.T) {
	m, jwtService := setupAuth(t)

	user, err := domain.NewUser("tech@plantwatch.example", "a long enough password")
	require.NoError(t, err)
	token, err := jwtService.GenerateToken(context.Background(), user)
	require.NoError(t, err)

	var got domain.Caller
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := middleware.GetCaller(r)
		require.True(t, ok)
		got = caller
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/quota", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, domain.RoleUser, got.Role)
}

func TestAuthenticateRejections(t *testing.T) {
	m, _ := setupAuth(t)

	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for rejected requests")
	}))

	cases := map[string]string{
		"no header":     "",
		"no bearer":     "Basic dXNlcjpwYXNz",
		"garbage token": "Bearer not.a.jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/downloads/quota", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
