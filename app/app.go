// Package app wires the stores, gateways and services shared by the HTTP
// server and the ledgerctl CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contratto/config"
	"contratto/database"
	"contratto/database/repository"
	"contratto/database/repository/memory"
	"contratto/services/gateway"
	"contratto/services/order"
	"contratto/services/outbox"
	"contratto/services/wallet"
	"contratto/utils"

	"go.uber.org/zap"
)

type App struct {
	Store    *repository.Store
	Gateways *gateway.Registry
	Wallets  *wallet.DefaultWalletService
	Orders   *order.DefaultOrderService
	// Relay is nil when KAFKA_BROKERS is empty.
	Relay *outbox.Relay

	closers []func()
}

// OpenStore connects the backend named by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*repository.Store, func(), error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "", "mongo":
		database.InitDB()
		closeFn := func() {
			if err := database.MongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect failed", zap.Error(err))
			}
		}
		return repository.NewMongoStore(database.MongoDatabase()), closeFn, nil
	case "postgres":
		if err := database.RunMigrations(cfg.PostgresURL); err != nil {
			return nil, nil, err
		}
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(pool), pool.Close, nil
	case "memory":
		logger.Warn("using the in-memory store, state is lost on restart")
		return memory.New().Repositories(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// NewGateways registers every gateway with credentials. Stripe, when
// configured, is the default.
func NewGateways(cfg config.Config, logger *zap.Logger) (*gateway.Registry, error) {
	var gws []gateway.Gateway
	if cfg.StripeKey != "" {
		gws = append(gws, gateway.NewStripeGateway(cfg.StripeKey, cfg.StripeWebhookSecret, cfg.FeeRate(), logger))
	}
	if cfg.AbacateAPIKey != "" {
		gws = append(gws, gateway.NewAbacateGateway(cfg.AbacateAPIKey, cfg.AbacateWebhookSecret, cfg.AbacateBaseURL, cfg.FeeRate(), logger))
	}
	if len(gws) == 0 {
		return nil, errors.New("no payment gateway configured: set STRIPE_KEY or ABACATE_API_KEY")
	}
	return gateway.NewRegistry(gws...), nil
}

// New builds the application from cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Store: store, closers: []func(){closeStore}}

	a.Gateways, err = NewGateways(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker order.Locker
	if cfg.RedisAddr != "" {
		locker = utils.NewRedisLocker(utils.GetCacheClient())
	}

	a.Wallets = wallet.NewWalletService(store, cfg.Currency, cfg.HoldPeriod, logger)
	a.Orders = order.NewOrderService(store, a.Gateways, a.Wallets, locker, order.Settings{
		FeeRate:        cfg.FeeRate(),
		Currency:       cfg.Currency,
		AppOrigin:      cfg.AppOrigin,
		CheckoutExpiry: cfg.CheckoutExpiry,
		ReconcileAfter: cfg.ReconcileAfter,
	}, logger)

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		writer := outbox.NewKafkaWriter(brokers, cfg.KafkaTopic)
		a.Relay = outbox.NewRelay(store, writer, logger)
		a.closers = append(a.closers, func() {
			if err := writer.Close(); err != nil {
				logger.Warn("kafka writer close failed", zap.Error(err))
			}
		})
	}
	return a, nil
}

// HealthChecks lists the dependencies the health monitor pings.
func (a *App) HealthChecks(cfg config.Config) map[string]utils.HealthCheck {
	checks := map[string]utils.HealthCheck{}
	if a.Store.Ping != nil {
		checks["store"] = a.Store.Ping
	}
	if cfg.RedisAddr != "" {
		checks["redis"] = func(ctx context.Context) error {
			return utils.GetCacheClient().Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
