package orderRepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contratto/database"
	"contratto/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOrderRepo implements OrderRepository on a pgx pool. Calls join the
// transaction carried by ctx, if any.
type PostgresOrderRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresOrderRepo(pool *pgxpool.Pool) OrderRepository {
	return &PostgresOrderRepo{pool: pool}
}

const orderColumns = `id, buyer_id, seller_id, service_id, package_tier, price_cents, platform_fee_cents,
	charge_cents, currency, status, payment_status, gateway, checkout_reference, payment_reference,
	created_at, updated_at, paid_at, completed_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var d orderDoc
	err := row.Scan(&d.ID, &d.BuyerID, &d.SellerID, &d.ServiceID, &d.PackageTier, &d.PriceCents,
		&d.PlatformFeeCents, &d.ChargeCents, &d.Currency, &d.Status, &d.PaymentStatus, &d.Gateway,
		&d.CheckoutReference, &d.PaymentReference, &d.CreatedAt, &d.UpdatedAt, &d.PaidAt, &d.CompletedAt)
	if err != nil {
		return nil, err
	}
	return d.model(), nil
}

func (r *PostgresOrderRepo) CreateOrder(ctx context.Context, order *models.Order, booking *models.Booking) error {
	d := toOrderDoc(order)
	q := database.Conn(ctx, r.pool)
	_, err := q.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		d.ID, d.BuyerID, d.SellerID, d.ServiceID, d.PackageTier, d.PriceCents, d.PlatformFeeCents,
		d.ChargeCents, d.Currency, d.Status, d.PaymentStatus, d.Gateway, d.CheckoutReference,
		d.PaymentReference, d.CreatedAt, d.UpdatedAt, d.PaidAt, d.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}
	if booking == nil {
		return nil
	}
	_, err = q.Exec(ctx,
		`INSERT INTO bookings (id, order_id, date, time, duration_minutes, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		booking.ID, booking.OrderID, booking.Date, booking.Time, booking.DurationMinutes,
		string(booking.Status), booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking for order %s: %w", order.ID, err)
	}
	return nil
}

func (r *PostgresOrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(database.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", id, err)
	}
	return o, nil
}

func (r *PostgresOrderRepo) GetBooking(ctx context.Context, orderID string) (*models.Booking, error) {
	var b models.Booking
	var status string
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, order_id, date, time, duration_minutes, status, created_at, updated_at
		 FROM bookings WHERE order_id = $1`, orderID,
	).Scan(&b.ID, &b.OrderID, &b.Date, &b.Time, &b.DurationMinutes, &status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking for order %s: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking for order %s: %w", orderID, err)
	}
	b.Status = models.BookingStatus(status)
	return &b, nil
}

func (r *PostgresOrderRepo) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, patch models.OrderPatch, at time.Time) (*models.Order, error) {
	sets := []string{"status = $3", "updated_at = $4"}
	args := []any{id, string(from), string(to), at}
	for col, val := range patchSet(patch) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	q := database.Conn(ctx, r.pool)
	o, err := scanOrder(q.QueryRow(ctx,
		`UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND status = $2 RETURNING `+orderColumns,
		args...,
	))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to transition order %s: %w", id, err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to transition order %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	return nil, models.ErrStatusMismatch
}

func (r *PostgresOrderRepo) UpdateBookingStatus(ctx context.Context, orderID string, status models.BookingStatus, at time.Time) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = $3 WHERE order_id = $1`, orderID, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to update booking for order %s: %w", orderID, err)
	}
	return nil
}

func (r *PostgresOrderRepo) ListByStatus(ctx context.Context, status models.OrderStatus, updatedBefore time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		string(status), updatedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s orders: %w", status, err)
	}
	defer rows.Close()

	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PostgresOrderRepo) AppendSagaLog(ctx context.Context, entry *models.SagaLog) error {
	var data any
	if len(entry.Data) > 0 {
		data = string(entry.Data)
	}
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO saga_logs (id, order_id, from_status, to_status, actor, data, created_at, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		entry.ID, entry.OrderID, string(entry.FromStatus), string(entry.ToStatus), entry.Actor, data,
		entry.CreatedAt, entry.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append saga log for order %s: %w", entry.OrderID, err)
	}
	return nil
}

func (r *PostgresOrderRepo) queryLogs(ctx context.Context, where string, args ...any) ([]models.SagaLog, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT id, order_id, from_status, to_status, actor, COALESCE(data::text, ''), created_at, published_at
		 FROM saga_logs WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query saga logs: %w", err)
	}
	defer rows.Close()

	var out []models.SagaLog
	for rows.Next() {
		var d sagaLogDoc
		if err := rows.Scan(&d.ID, &d.OrderID, &d.FromStatus, &d.ToStatus, &d.Actor, &d.Data, &d.CreatedAt, &d.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saga log: %w", err)
		}
		out = append(out, d.model())
	}
	return out, rows.Err()
}

func (r *PostgresOrderRepo) ListSagaLogs(ctx context.Context, orderID string) ([]models.SagaLog, error) {
	return r.queryLogs(ctx, `order_id = $1 ORDER BY created_at`, orderID)
}

// ListUnpublishedLogs locks the rows it returns when called inside a
// transaction, so concurrent relays skip each other's batch.
func (r *PostgresOrderRepo) ListUnpublishedLogs(ctx context.Context, limit int) ([]models.SagaLog, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryLogs(ctx, `published_at IS NULL ORDER BY created_at LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
}

func (r *PostgresOrderRepo) MarkLogsPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE saga_logs SET published_at = $2 WHERE id = ANY($1) AND published_at IS NULL`, ids, at)
	if err != nil {
		return fmt.Errorf("failed to mark saga logs published: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepo) AppendMessage(ctx context.Context, msg *models.Message) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO messages (id, order_id, sender_id, type, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.OrderID, msg.SenderID, msg.Type, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message to order %s: %w", msg.OrderID, err)
	}
	return nil
}
