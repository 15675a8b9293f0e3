package eventRepo

import (
	"context"
	"fmt"
	"time"

	"contratto/database"
	"contratto/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEventRepo implements EventRepository on pgx.
type PostgresEventRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresEventRepo(pool *pgxpool.Pool) EventRepository {
	return &PostgresEventRepo{pool: pool}
}

func (r *PostgresEventRepo) Record(ctx context.Context, ev *models.WebhookEvent) (bool, error) {
	q := database.Conn(ctx, r.pool)
	tag, err := q.Exec(ctx,
		`INSERT INTO webhook_events (id, gateway, provider_event_id, event_type, order_id, payload_hash, status, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (gateway, provider_event_id) DO NOTHING`,
		ev.ID, ev.Gateway, ev.ProviderEventID, string(ev.Type), ev.OrderID, ev.PayloadHash, string(ev.Status), ev.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event %s: %w", ev.ProviderEventID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var status string
	if err := q.QueryRow(ctx,
		`SELECT status FROM webhook_events WHERE gateway = $1 AND provider_event_id = $2`,
		ev.Gateway, ev.ProviderEventID,
	).Scan(&status); err != nil {
		return false, fmt.Errorf("failed to load webhook event %s: %w", ev.ProviderEventID, err)
	}
	return status != string(models.WebhookProcessed), nil
}

func (r *PostgresEventRepo) MarkProcessed(ctx context.Context, gateway, providerEventID string, at time.Time) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE webhook_events SET status = $3, error = '', processed_at = $4
		 WHERE gateway = $1 AND provider_event_id = $2`,
		gateway, providerEventID, string(models.WebhookProcessed), at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event %s processed: %w", providerEventID, err)
	}
	return nil
}

func (r *PostgresEventRepo) MarkFailed(ctx context.Context, gateway, providerEventID, reason string) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE webhook_events SET status = $3, error = $4
		 WHERE gateway = $1 AND provider_event_id = $2 AND status <> $5`,
		gateway, providerEventID, string(models.WebhookFailed), reason, string(models.WebhookProcessed),
	)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event %s failed: %w", providerEventID, err)
	}
	return nil
}
