package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a seller's balances. Available is never negative.
type Wallet struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Available decimal.Decimal `json:"availableBalance"`
	Pending   decimal.Decimal `json:"pendingBalance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Total is Available + Pending, which must equal the sum of the wallet's transactions.
func (w *Wallet) Total() decimal.Decimal {
	return w.Available.Add(w.Pending)
}

type TransactionType string

const (
	TxCreditEscrow TransactionType = "credit-escrow"
	TxDebitPayout  TransactionType = "debit-payout"
	TxReversal     TransactionType = "reversal"
)

// Transaction is an append-only ledger entry. Amount is signed.
type Transaction struct {
	ID       string          `json:"id"`
	WalletID string          `json:"walletId"`
	Amount   decimal.Decimal `json:"amount"`
	Type     TransactionType `json:"type"`
	OrderID  string          `json:"orderId,omitempty"`
	PayoutID string          `json:"payoutId,omitempty"`
	// Settled is set on escrow credits once the hold matured into available balance.
	Settled bool `json:"settled"`
	// Reversed is set on escrow credits that a reversal entry cancelled.
	Reversed    bool      `json:"reversed"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PayoutStatus string

const (
	PayoutRequested PayoutStatus = "requested"
	PayoutProcessed PayoutStatus = "processed"
	PayoutFailed    PayoutStatus = "failed"
)

// PayoutRequest is a seller's withdrawal instruction.
type PayoutRequest struct {
	ID        string          `json:"id"`
	WalletID  string          `json:"walletId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    PayoutStatus    `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
