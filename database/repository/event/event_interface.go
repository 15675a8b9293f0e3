package eventRepo

import (
	"context"
	"time"

	"contratto/models"
)

// EventRepository keeps one row per (gateway, provider event id).
type EventRepository interface {
	// Record stores the delivery. fresh is false when the same event was
	// already processed; a previously failed or unfinished event is handed out again.
	Record(ctx context.Context, ev *models.WebhookEvent) (fresh bool, err error)
	MarkProcessed(ctx context.Context, gateway, providerEventID string, at time.Time) error
	MarkFailed(ctx context.Context, gateway, providerEventID, reason string) error
}
