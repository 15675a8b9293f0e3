package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the saga state of an order.
type OrderStatus string

const (
	OrderCreated          OrderStatus = "CREATED"
	OrderAwaitingPayment  OrderStatus = "AWAITING_PAYMENT"
	OrderPaymentConfirmed OrderStatus = "PAYMENT_CONFIRMED"
	OrderActive           OrderStatus = "ORDER_ACTIVE"
	OrderCompleted        OrderStatus = "COMPLETED"
	OrderCancelled        OrderStatus = "CANCELLED"
	OrderRefunded         OrderStatus = "REFUNDED"
)

// Terminal reports whether no further transition can leave the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderRefunded
}

// PaymentStatus only moves forward: unpaid -> pending -> paid -> refunded.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) rank() int {
	switch p {
	case PaymentUnpaid:
		return 0
	case PaymentPending:
		return 1
	case PaymentPaid:
		return 2
	case PaymentRefunded:
		return 3
	}
	return -1
}

// CanAdvanceTo reports whether moving from p to next keeps payment status monotonic.
// Staying on the same value is allowed.
func (p PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	return next.rank() >= p.rank() && next.rank() >= 0
}

// Order is one purchase of a service package.
type Order struct {
	ID          string          `json:"id"`
	BuyerID     string          `json:"buyerId"`
	SellerID    string          `json:"sellerId"`
	ServiceID   string          `json:"serviceId"`
	PackageTier string          `json:"packageTier"`
	Price       decimal.Decimal `json:"price"`
	PlatformFee decimal.Decimal `json:"platformFee"`
	// ChargeAmount is what the buyer pays: Price + PlatformFee.
	ChargeAmount decimal.Decimal `json:"chargeAmount"`
	Currency     string          `json:"currency"`

	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`

	Gateway           string `json:"gateway,omitempty"`
	CheckoutReference string `json:"checkoutReference,omitempty"`
	PaymentReference  string `json:"paymentReference,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// IsParty reports whether userID is the buyer or the seller of the order.
func (o *Order) IsParty(userID string) bool {
	return userID != "" && (o.BuyerID == userID || o.SellerID == userID)
}

// OrderPatch lists the columns written together with a status compare-and-swap.
// Nil fields are left untouched.
type OrderPatch struct {
	PaymentStatus     *PaymentStatus
	Gateway           *string
	CheckoutReference *string
	PaymentReference  *string
	PlatformFee       *decimal.Decimal
	ChargeAmount      *decimal.Decimal
	PaidAt            *time.Time
	CompletedAt       *time.Time
}

// Apply copies the non-nil patch fields onto o.
func (p OrderPatch) Apply(o *Order) {
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.Gateway != nil {
		o.Gateway = *p.Gateway
	}
	if p.CheckoutReference != nil {
		o.CheckoutReference = *p.CheckoutReference
	}
	if p.PaymentReference != nil {
		o.PaymentReference = *p.PaymentReference
	}
	if p.PlatformFee != nil {
		o.PlatformFee = *p.PlatformFee
	}
	if p.ChargeAmount != nil {
		o.ChargeAmount = *p.ChargeAmount
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		o.PaidAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		o.CompletedAt = &t
	}
}

// CreateOrderInput is the buyer's request to buy a service package.
type CreateOrderInput struct {
	SellerID    string          `json:"sellerId" binding:"required"`
	ServiceID   string          `json:"serviceId" binding:"required"`
	PackageTier string          `json:"packageTier"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Booking     *BookingInput   `json:"booking,omitempty"`
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderCreated:          {OrderAwaitingPayment, OrderCancelled},
	OrderAwaitingPayment:  {OrderAwaitingPayment, OrderPaymentConfirmed, OrderCancelled},
	OrderPaymentConfirmed: {OrderActive, OrderCancelled, OrderRefunded},
	OrderActive:           {OrderCompleted, OrderCancelled, OrderRefunded},
}

// CanTransition reports whether the saga state machine has an edge from -> to.
// AWAITING_PAYMENT -> AWAITING_PAYMENT is the re-checkout edge.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reached reports whether s is target or a status the happy path only reaches after target.
func (s OrderStatus) Reached(target OrderStatus) bool {
	order := []OrderStatus{OrderCreated, OrderAwaitingPayment, OrderPaymentConfirmed, OrderActive, OrderCompleted}
	idx := func(x OrderStatus) int {
		for i, v := range order {
			if v == x {
				return i
			}
		}
		return -1
	}
	a, b := idx(s), idx(target)
	return a >= 0 && b >= 0 && a >= b
}
