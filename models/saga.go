package models

import (
	"encoding/json"
	"time"
)

// SagaLog is the audit entry written for every order transition.
type SagaLog struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	FromStatus  OrderStatus     `json:"fromStatus"`
	ToStatus    OrderStatus     `json:"toStatus"`
	Actor       string          `json:"actor"`
	Data        json.RawMessage `json:"data,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	PublishedAt *time.Time      `json:"publishedAt,omitempty"`
}
