package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"contratto/models"
)

func (s OrderStore) CreateOrder(ctx context.Context, order *models.Order, booking *models.Booking) error {
	return s.locked(ctx, func() error {
		if _, ok := s.st.orders[order.ID]; ok {
			return fmt.Errorf("order %s already exists", order.ID)
		}
		s.st.orders[order.ID] = *order
		if booking != nil {
			s.st.bookings[order.ID] = *booking
		}
		return nil
	})
}

func (s OrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var out *models.Order
	err := s.locked(ctx, func() error {
		o, ok := s.st.orders[id]
		if !ok {
			return fmt.Errorf("order %s: %w", id, models.ErrNotFound)
		}
		out = &o
		return nil
	})
	return out, err
}

func (s OrderStore) GetBooking(ctx context.Context, orderID string) (*models.Booking, error) {
	var out *models.Booking
	err := s.locked(ctx, func() error {
		b, ok := s.st.bookings[orderID]
		if !ok {
			return fmt.Errorf("booking for order %s: %w", orderID, models.ErrNotFound)
		}
		out = &b
		return nil
	})
	return out, err
}

func (s OrderStore) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, patch models.OrderPatch, at time.Time) (*models.Order, error) {
	var out *models.Order
	err := s.locked(ctx, func() error {
		o, ok := s.st.orders[id]
		if !ok {
			return fmt.Errorf("order %s: %w", id, models.ErrNotFound)
		}
		if o.Status != from {
			return models.ErrStatusMismatch
		}
		o.Status = to
		o.UpdatedAt = at
		patch.Apply(&o)
		s.st.orders[id] = o
		out = &o
		return nil
	})
	return out, err
}

func (s OrderStore) UpdateBookingStatus(ctx context.Context, orderID string, status models.BookingStatus, at time.Time) error {
	return s.locked(ctx, func() error {
		b, ok := s.st.bookings[orderID]
		if !ok {
			return nil
		}
		b.Status = status
		b.UpdatedAt = at
		s.st.bookings[orderID] = b
		return nil
	})
}

func (s OrderStore) ListByStatus(ctx context.Context, status models.OrderStatus, updatedBefore time.Time, limit int) ([]models.Order, error) {
	var out []models.Order
	err := s.locked(ctx, func() error {
		for _, o := range s.st.orders {
			if o.Status == status && o.UpdatedAt.Before(updatedBefore) {
				out = append(out, o)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s OrderStore) AppendSagaLog(ctx context.Context, entry *models.SagaLog) error {
	return s.locked(ctx, func() error {
		s.st.logs = append(s.st.logs, *entry)
		return nil
	})
}

func (s OrderStore) ListSagaLogs(ctx context.Context, orderID string) ([]models.SagaLog, error) {
	var out []models.SagaLog
	err := s.locked(ctx, func() error {
		for _, l := range s.st.logs {
			if l.OrderID == orderID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

func (s OrderStore) ListUnpublishedLogs(ctx context.Context, limit int) ([]models.SagaLog, error) {
	var out []models.SagaLog
	err := s.locked(ctx, func() error {
		for _, l := range s.st.logs {
			if l.PublishedAt == nil {
				out = append(out, l)
				if limit > 0 && len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (s OrderStore) MarkLogsPublished(ctx context.Context, ids []string, at time.Time) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.locked(ctx, func() error {
		for i := range s.st.logs {
			if want[s.st.logs[i].ID] && s.st.logs[i].PublishedAt == nil {
				t := at
				s.st.logs[i].PublishedAt = &t
			}
		}
		return nil
	})
}

func (s OrderStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	return s.locked(ctx, func() error {
		s.st.messages = append(s.st.messages, *msg)
		return nil
	})
}

// Messages returns the messages posted on an order.
func (s *Store) Messages(orderID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.st.messages {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	return out
}
