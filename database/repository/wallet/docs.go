package walletRepo

import (
	"time"

	"contratto/models"
)

// Stored shapes. Amounts are integer cents.
type walletDoc struct {
	ID             string    `bson:"id"`
	OwnerID        string    `bson:"owner_id"`
	AvailableCents int64     `bson:"available_cents"`
	PendingCents   int64     `bson:"pending_cents"`
	Currency       string    `bson:"currency"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (d walletDoc) model() *models.Wallet {
	return &models.Wallet{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Available: models.FromCents(d.AvailableCents),
		Pending:   models.FromCents(d.PendingCents),
		Currency:  d.Currency,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type txDoc struct {
	ID          string    `bson:"id"`
	WalletID    string    `bson:"wallet_id"`
	AmountCents int64     `bson:"amount_cents"`
	Type        string    `bson:"type"`
	OrderID     string    `bson:"order_id"`
	PayoutID    string    `bson:"payout_id"`
	Settled     bool      `bson:"settled"`
	Reversed    bool      `bson:"reversed"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (d txDoc) model() models.Transaction {
	return models.Transaction{
		ID:          d.ID,
		WalletID:    d.WalletID,
		Amount:      models.FromCents(d.AmountCents),
		Type:        models.TransactionType(d.Type),
		OrderID:     d.OrderID,
		PayoutID:    d.PayoutID,
		Settled:     d.Settled,
		Reversed:    d.Reversed,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
	}
}

type payoutDoc struct {
	ID          string    `bson:"id"`
	WalletID    string    `bson:"wallet_id"`
	AmountCents int64     `bson:"amount_cents"`
	Status      string    `bson:"status"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d payoutDoc) model() *models.PayoutRequest {
	return &models.PayoutRequest{
		ID:        d.ID,
		WalletID:  d.WalletID,
		Amount:    models.FromCents(d.AmountCents),
		Status:    models.PayoutStatus(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
