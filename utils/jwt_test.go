package utils

import (
	"testing"
	"time"

	"contratto/config"
	"contratto/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecret(t *testing.T, secret string) {
	t.Helper()
	prev := config.AppConfig.JWTSecret
	config.AppConfig.JWTSecret = secret
	t.Cleanup(func() { config.AppConfig.JWTSecret = prev })
}

func TestIdentityRoundTrip(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken(models.Identity{UserID: "buyer-1", Email: "b@example.com", Role: models.RoleAdmin, TaxID: "123"}, time.Minute)
	require.NoError(t, err)

	id, err := IdentityFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", id.UserID)
	assert.Equal(t, "b@example.com", id.Email)
	assert.Equal(t, models.RoleAdmin, id.Role)
	assert.Equal(t, "123", id.TaxID)
}

func TestIdentityDefaultsToUserRole(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken(models.Identity{UserID: "u"}, time.Minute)
	require.NoError(t, err)
	id, err := IdentityFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, id.Role)
}

func TestIdentityRejectsExpiredAndForeignTokens(t *testing.T) {
	withSecret(t, "test-secret")
	expired, err := GenerateToken(models.Identity{UserID: "u"}, -time.Minute)
	require.NoError(t, err)
	_, err = IdentityFromToken(expired)
	assert.Error(t, err)

	withSecret(t, "other-secret")
	other, err := GenerateToken(models.Identity{UserID: "u"}, time.Minute)
	require.NoError(t, err)
	withSecret(t, "test-secret")
	_, err = IdentityFromToken(other)
	assert.Error(t, err)
}
