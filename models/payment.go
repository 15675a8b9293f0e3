package models

import "github.com/shopspring/decimal"

const (
	GatewayStripe  = "stripe"
	GatewayAbacate = "abacate"
)

// CheckoutRequest is what the saga hands a gateway to open a hosted checkout.
type CheckoutRequest struct {
	Order      *Order
	Customer   Identity
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider's answer to a checkout request.
type CheckoutSession struct {
	Gateway           string          `json:"gateway"`
	URL               string          `json:"checkoutUrl"`
	ProviderReference string          `json:"providerReference"`
	Amount            decimal.Decimal `json:"amount"`
	PlatformFee       decimal.Decimal `json:"platformFee"`
}

// PaymentLookupStatus is the result of asking a gateway about a checkout out of band.
type PaymentLookupStatus string

const (
	LookupPending PaymentLookupStatus = "pending"
	LookupPaid    PaymentLookupStatus = "paid"
	LookupExpired PaymentLookupStatus = "expired"
)

type PaymentLookup struct {
	Status           PaymentLookupStatus
	PaymentReference string
	Amount           decimal.Decimal
}

// StartCheckoutInput is the body of POST /api/orders/:id/checkout.
type StartCheckoutInput struct {
	Gateway string `json:"gateway"`
}

// PayoutInput is the body of POST /api/wallet/payouts.
type PayoutInput struct {
	Amount decimal.Decimal `json:"amount"`
}

// RefundInput is the body of POST /api/orders/:id/refund.
type RefundInput struct {
	Reason string `json:"reason"`
}
