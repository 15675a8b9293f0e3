package app

import (
	"context"
	"testing"

	"contratto/config"
	"contratto/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewGateways(t *testing.T) {
	logger := zap.NewNop()

	_, err := NewGateways(config.Config{}, logger)
	require.Error(t, err)

	reg, err := NewGateways(config.Config{AbacateAPIKey: "abc_dev", PlatformFeeRate: "0.05"}, logger)
	require.NoError(t, err)
	gw, err := reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, models.GatewayAbacate, gw.Name())

	reg, err = NewGateways(config.Config{StripeKey: "sk_test", AbacateAPIKey: "abc_dev", PlatformFeeRate: "0.05"}, logger)
	require.NoError(t, err)
	gw, err = reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, models.GatewayStripe, gw.Name())
	assert.Equal(t, []string{models.GatewayAbacate, models.GatewayStripe}, reg.Names())
}

func TestNewWithMemoryStore(t *testing.T) {
	cfg := config.Config{
		StoreDriver:     "memory",
		StripeKey:       "sk_test",
		PlatformFeeRate: "0.05",
		Currency:        "brl",
	}
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Relay)
	assert.Nil(t, a.Orders.Locker)
	checks := a.HealthChecks(cfg)
	require.Contains(t, checks, "store")
	assert.NoError(t, checks["store"](context.Background()))
	assert.NotContains(t, checks, "redis")
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, _, err := OpenStore(context.Background(), config.Config{StoreDriver: "sqlite"}, zap.NewNop())
	assert.Error(t, err)
}
