package walletRepo

import (
	"context"
	"time"

	"contratto/models"

	"github.com/shopspring/decimal"
)

// WalletRepository is the ledger store. Every method that moves money writes
// the balance change and its transaction row atomically, so
// available + pending always equals the sum of the wallet's transactions.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, ownerID, currency string, at time.Time) (*models.Wallet, error)
	GetByID(ctx context.Context, id string) (*models.Wallet, error)
	GetByOwner(ctx context.Context, ownerID string) (*models.Wallet, error)

	// CreditPending appends a credit-escrow entry for orderID and raises the
	// pending balance. It reports false without writing when the order was
	// already credited.
	CreditPending(ctx context.Context, walletID string, amount decimal.Decimal, orderID string, at time.Time) (bool, error)

	// ReverseCredit cancels the escrow credit of orderID with a reversal entry.
	// Unsettled credits come out of pending; settled ones out of available,
	// failing with models.ErrInsufficientFunds when that would go negative.
	// It reports false when there is no live credit to reverse.
	ReverseCredit(ctx context.Context, orderID string, at time.Time) (bool, error)

	// ListSettleable returns unsettled, unreversed escrow credits created before the cutoff.
	ListSettleable(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error)
	// SettleCredit moves one escrow credit from pending to available.
	SettleCredit(ctx context.Context, txID string, at time.Time) (bool, error)

	// DebitForPayout locks the wallet, checks available >= amount, debits it
	// and inserts the payout request and its debit entry in one transaction.
	DebitForPayout(ctx context.Context, walletID string, amount decimal.Decimal, at time.Time) (*models.PayoutRequest, error)
	GetPayout(ctx context.Context, id string) (*models.PayoutRequest, error)
	// ResolvePayout moves a requested payout to processed or failed. A failed
	// payout gives the amount back to available through a reversal entry.
	ResolvePayout(ctx context.Context, payoutID string, status models.PayoutStatus, at time.Time) (bool, error)

	ListTransactions(ctx context.Context, walletID string, limit int) ([]models.Transaction, error)
	SumTransactions(ctx context.Context, walletID string) (decimal.Decimal, error)
}
