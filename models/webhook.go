package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the gateway-neutral meaning of a webhook.
type EventType string

const (
	EventPaymentSucceeded EventType = "PaymentSucceeded"
	EventPaymentFailed    EventType = "PaymentFailed"
	EventPayoutSucceeded  EventType = "PayoutSucceeded"
	EventPayoutFailed     EventType = "PayoutFailed"
)

// CanonicalEvent is a verified webhook normalized across gateways.
type CanonicalEvent struct {
	Gateway          string          `json:"gateway"`
	Type             EventType       `json:"eventType"`
	OrderID          string          `json:"orderId,omitempty"`
	PayoutID         string          `json:"payoutId,omitempty"`
	ProviderEventID  string          `json:"providerEventId"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PayloadHash      string          `json:"payloadHash"`
	ReceivedAt       time.Time       `json:"receivedAt"`
}

type WebhookEventStatus string

const (
	WebhookReceived  WebhookEventStatus = "received"
	WebhookProcessed WebhookEventStatus = "processed"
	WebhookFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is the persisted idempotency record of a delivery,
// unique on (Gateway, ProviderEventID).
type WebhookEvent struct {
	ID              string             `json:"id"`
	Gateway         string             `json:"gateway"`
	ProviderEventID string             `json:"providerEventId"`
	Type            EventType          `json:"eventType"`
	OrderID         string             `json:"orderId,omitempty"`
	PayloadHash     string             `json:"payloadHash"`
	Status          WebhookEventStatus `json:"status"`
	Error           string             `json:"error,omitempty"`
	ReceivedAt      time.Time          `json:"receivedAt"`
	ProcessedAt     *time.Time         `json:"processedAt,omitempty"`
}
