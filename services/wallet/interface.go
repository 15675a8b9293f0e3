package wallet

import (
	"context"
	"time"

	"contratto/database/repository"
	walletRepo "contratto/database/repository/wallet"
	"contratto/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService is the seller ledger and payout processor.
type WalletService interface {
	GetWallet(ctx context.Context, ownerID string) (*models.Wallet, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]models.Transaction, error)

	// CreditEscrow credits the seller's pending balance for orderID. A second
	// call for the same order reports false and changes nothing.
	CreditEscrow(ctx context.Context, sellerID, currency string, amount decimal.Decimal, orderID string) (bool, error)
	// ReverseEscrow books a reversal against the credit of orderID, if any.
	ReverseEscrow(ctx context.Context, orderID string) (bool, error)

	RequestPayout(ctx context.Context, walletID string, amount decimal.Decimal) (*models.PayoutRequest, error)
	ResolvePayout(ctx context.Context, payoutID string, status models.PayoutStatus) (bool, error)

	// SettleMatured moves escrow credits older than the hold period to available.
	SettleMatured(ctx context.Context) (int, error)
	Audit(ctx context.Context, walletID string) (*AuditReport, error)
}

// DefaultWalletService implements WalletService on a WalletRepository.
type DefaultWalletService struct {
	Repo       walletRepo.WalletRepository
	Tx         repository.TxRunner
	Currency   string
	HoldPeriod time.Duration
	Logger     *zap.Logger
	// Now is overridden in tests.
	Now func() time.Time
}

func NewWalletService(store *repository.Store, currency string, holdPeriod time.Duration, logger *zap.Logger) *DefaultWalletService {
	return &DefaultWalletService{
		Repo:       store.Wallets,
		Tx:         store.Tx,
		Currency:   currency,
		HoldPeriod: holdPeriod,
		Logger:     logger,
		Now:        time.Now,
	}
}

func (s *DefaultWalletService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// AuditReport compares a wallet's balances with its ledger.
type AuditReport struct {
	WalletID  string          `json:"walletId"`
	Available decimal.Decimal `json:"availableBalance"`
	Pending   decimal.Decimal `json:"pendingBalance"`
	Ledger    decimal.Decimal `json:"ledgerSum"`
	Drift     decimal.Decimal `json:"drift"`
	Balanced  bool            `json:"balanced"`
}
