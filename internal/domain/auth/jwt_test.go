package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "querygrid/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc, err := NewJWTService(DefaultJWTConfig("secret"))
	require.NoError(t, err)

	token, expires, err := svc.GenerateAccessToken(appctx.UserContext{
		UserID:  "u1",
		Email:   "u1@example.com",
		Roles:   []string{"viewer"},
		IsAdmin: true,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expires, time.Minute)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, []string{"viewer"}, user.Roles)
	assert.True(t, user.IsAdmin)
	assert.NotEmpty(t, user.SessionID)
}

func TestJWTService_Rejects(t *testing.T) {
	svc, err := NewJWTService(DefaultJWTConfig("secret"))
	require.NoError(t, err)

	other, err := NewJWTService(DefaultJWTConfig("other"))
	require.NoError(t, err)
	foreign, _, err := other.GenerateAccessToken(appctx.UserContext{UserID: "u1"})
	require.NoError(t, err)

	issuer, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "elsewhere"})
	require.NoError(t, err)
	wrongIssuer, _, err := issuer.GenerateAccessToken(appctx.UserContext{UserID: "u1"})
	require.NoError(t, err)

	noUser, _, err := svc.GenerateAccessToken(appctx.UserContext{})
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"wrong issuer": wrongIssuer,
		"missing user": noUser,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.Error(t, err)
		})
	}
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	assert.Error(t, err)
}
