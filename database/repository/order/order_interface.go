package orderRepo

import (
	"context"
	"time"

	"contratto/models"
)

// OrderRepository persists orders, their bookings, the saga audit log and order messages.
type OrderRepository interface {
	// CreateOrder inserts the order and, when non-nil, its booking.
	CreateOrder(ctx context.Context, order *models.Order, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetBooking(ctx context.Context, orderID string) (*models.Booking, error)

	// TransitionStatus is a compare-and-swap on the status column: the row is
	// only written when its stored status equals from. It returns
	// models.ErrStatusMismatch when another writer got there first and
	// models.ErrNotFound when the order does not exist.
	TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, patch models.OrderPatch, at time.Time) (*models.Order, error)

	// UpdateBookingStatus is a no-op for orders without a booking.
	UpdateBookingStatus(ctx context.Context, orderID string, status models.BookingStatus, at time.Time) error

	// ListByStatus returns orders in status whose last update is before the cutoff, oldest first.
	ListByStatus(ctx context.Context, status models.OrderStatus, updatedBefore time.Time, limit int) ([]models.Order, error)

	AppendSagaLog(ctx context.Context, entry *models.SagaLog) error
	ListSagaLogs(ctx context.Context, orderID string) ([]models.SagaLog, error)
	ListUnpublishedLogs(ctx context.Context, limit int) ([]models.SagaLog, error)
	MarkLogsPublished(ctx context.Context, ids []string, at time.Time) error

	AppendMessage(ctx context.Context, msg *models.Message) error
}
