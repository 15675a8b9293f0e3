package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"contratto/models"
	"contratto/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// journal collects the audit entries of one unit of work. They are written
// after the transaction commits, so a failed audit write never undoes a transition.
type journal struct {
	entries []models.SagaLog
}

func (j *journal) reset() { j.entries = j.entries[:0] }

func (j *journal) add(o *models.Order, from, to models.OrderStatus, actor string, data map[string]any) {
	raw, err := json.Marshal(data)
	if err != nil || len(data) == 0 {
		raw = nil
	}
	j.entries = append(j.entries, models.SagaLog{
		ID:         uuid.New().String(),
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Data:       raw,
		CreatedAt:  o.UpdatedAt,
	})
}

// flush appends the journal to the saga log. Failures are logged, not returned.
func (s *DefaultOrderService) flush(ctx context.Context, j *journal) {
	for i := range j.entries {
		e := j.entries[i]
		utils.SagaTransitions.WithLabelValues(string(e.FromStatus), string(e.ToStatus)).Inc()
		s.Logger.Info("order transition",
			zap.String("orderID", e.OrderID),
			zap.String("from", string(e.FromStatus)),
			zap.String("to", string(e.ToStatus)),
			zap.String("actor", e.Actor))
		if err := s.Store.Orders.AppendSagaLog(ctx, &e); err != nil {
			s.Logger.Error("failed to append saga log", zap.String("orderID", e.OrderID), zap.Error(err))
		}
	}
	j.reset()
}

// transition moves o to the target status with a compare-and-swap on its
// current status. It reports changed=false when the order already sits in the
// target status, including when a concurrent writer got there first.
func (s *DefaultOrderService) transition(ctx context.Context, o *models.Order, to models.OrderStatus, patch models.OrderPatch, actor string, data map[string]any, j *journal) (*models.Order, bool, error) {
	if o.Status == to && !models.CanTransition(to, to) {
		return o, false, nil
	}
	if !models.CanTransition(o.Status, to) {
		return nil, false, &models.TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	if patch.PaymentStatus != nil && !o.PaymentStatus.CanAdvanceTo(*patch.PaymentStatus) {
		return nil, false, &models.TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}

	updated, err := s.Store.Orders.TransitionStatus(ctx, o.ID, o.Status, to, patch, s.now())
	if errors.Is(err, models.ErrStatusMismatch) {
		current, gerr := s.Store.Orders.GetByID(ctx, o.ID)
		if gerr != nil {
			return nil, false, gerr
		}
		if current.Status == to {
			return current, false, nil
		}
		return nil, false, &models.TransitionError{OrderID: o.ID, From: current.Status, To: to}
	}
	if err != nil {
		return nil, false, fmt.Errorf("transition order %s to %s: %w", o.ID, to, err)
	}

	j.add(updated, o.Status, to, actor, data)
	return updated, true, nil
}

// load fetches an order and checks that caller may see it.
func (s *DefaultOrderService) load(ctx context.Context, caller models.Identity, orderID string) (*models.Order, error) {
	o, err := s.Store.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(caller.UserID) && !caller.IsAdmin() {
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrForbidden)
	}
	return o, nil
}

func (s *DefaultOrderService) setBooking(ctx context.Context, orderID string, status models.BookingStatus) error {
	if err := s.Store.Orders.UpdateBookingStatus(ctx, orderID, status, s.now()); err != nil {
		return fmt.Errorf("booking of order %s: %w", orderID, err)
	}
	return nil
}
