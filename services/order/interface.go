package order

import (
	"context"
	"time"

	"contratto/database/repository"
	"contratto/models"
	"contratto/services/gateway"
	"contratto/services/wallet"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService drives the order saga: checkout, gateway events, approval,
// refund and cancellation.
type OrderService interface {
	CreateOrder(ctx context.Context, buyer models.Identity, input models.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, caller models.Identity, orderID string) (*models.Order, *models.Booking, error)
	History(ctx context.Context, caller models.Identity, orderID string) ([]models.SagaLog, error)

	StartCheckout(ctx context.Context, caller models.Identity, orderID, gatewayName string) (*models.CheckoutSession, error)
	HandleEvent(ctx context.Context, ev *models.CanonicalEvent) (EventOutcome, error)
	Approve(ctx context.Context, caller models.Identity, orderID string) (*models.Order, error)
	Refund(ctx context.Context, caller models.Identity, orderID, reason string) (*models.Order, error)
	Cancel(ctx context.Context, caller models.Identity, orderID string) (*models.Order, error)

	ExpireAbandoned(ctx context.Context) (int, error)
	Reconcile(ctx context.Context) (int, error)
}

// Locker keeps two deliveries of the same event from being processed side by side.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Settings are the saga's tunables, read from config.
type Settings struct {
	FeeRate        decimal.Decimal
	Currency       string
	AppOrigin      string
	CheckoutExpiry time.Duration
	ReconcileAfter time.Duration
}

// DefaultOrderService implements OrderService.
type DefaultOrderService struct {
	Store    *repository.Store
	Gateways *gateway.Registry
	Wallets  wallet.WalletService
	// Locker is optional.
	Locker   Locker
	Settings Settings
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewOrderService(store *repository.Store, gateways *gateway.Registry, wallets wallet.WalletService, locker Locker, settings Settings, logger *zap.Logger) *DefaultOrderService {
	return &DefaultOrderService{
		Store:    store,
		Gateways: gateways,
		Wallets:  wallets,
		Locker:   locker,
		Settings: settings,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (s *DefaultOrderService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
