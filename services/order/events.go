package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contratto/models"
	"contratto/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventOutcome tells the webhook boundary whether to acknowledge a delivery.
type EventOutcome string

const (
	OutcomeProcessed EventOutcome = "processed"
	// OutcomeDuplicate means the event id was already processed.
	OutcomeDuplicate EventOutcome = "duplicate"
	// OutcomeIgnored means the event did not apply to the order's current state.
	OutcomeIgnored EventOutcome = "ignored"
	// OutcomeInFlight means another delivery of the same event holds the lock.
	OutcomeInFlight EventOutcome = "in_flight"
	OutcomeFailed   EventOutcome = "failed"
)

const eventLockTTL = 30 * time.Second

// HandleEvent applies a verified gateway event exactly once per provider event id.
func (s *DefaultOrderService) HandleEvent(ctx context.Context, ev *models.CanonicalEvent) (outcome EventOutcome, err error) {
	defer func() {
		utils.WebhookOutcomes.WithLabelValues(ev.Gateway, string(outcome)).Inc()
	}()
	logger := s.Logger.With(
		zap.String("gateway", ev.Gateway),
		zap.String("eventID", ev.ProviderEventID),
		zap.String("eventType", string(ev.Type)),
		zap.String("orderID", ev.OrderID))

	if s.Locker != nil {
		key := "webhook:" + ev.Gateway + ":" + ev.ProviderEventID
		ok, lerr := s.Locker.Acquire(ctx, key, eventLockTTL)
		switch {
		case lerr != nil:
			logger.Warn("event lock unavailable, relying on store guards", zap.Error(lerr))
		case !ok:
			logger.Info("event already in flight")
			return OutcomeInFlight, nil
		default:
			defer func() {
				if rerr := s.Locker.Release(context.WithoutCancel(ctx), key); rerr != nil {
					logger.Warn("failed to release event lock", zap.Error(rerr))
				}
			}()
		}
	}

	fresh, err := s.Store.Events.Record(ctx, &models.WebhookEvent{
		ID:              uuid.New().String(),
		Gateway:         ev.Gateway,
		ProviderEventID: ev.ProviderEventID,
		Type:            ev.Type,
		OrderID:         ev.OrderID,
		PayloadHash:     ev.PayloadHash,
		Status:          models.WebhookReceived,
		ReceivedAt:      ev.ReceivedAt,
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("record event: %w", err)
	}
	if !fresh {
		logger.Info("duplicate event acknowledged")
		return OutcomeDuplicate, nil
	}

	j := &journal{}
	err = s.Store.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		j.reset()
		if err := s.apply(ctx, ev, j); err != nil {
			return err
		}
		return s.Store.Events.MarkProcessed(ctx, ev.Gateway, ev.ProviderEventID, s.now())
	})
	if err == nil {
		s.flush(ctx, j)
		return OutcomeProcessed, nil
	}

	if merr := s.Store.Events.MarkFailed(ctx, ev.Gateway, ev.ProviderEventID, err.Error()); merr != nil {
		logger.Error("failed to mark event failed", zap.Error(merr))
	}
	if errors.Is(err, models.ErrInvalidStateTransition) || errors.Is(err, models.ErrNotFound) {
		logger.Error("event does not apply, acknowledged", zap.Error(err))
		return OutcomeIgnored, nil
	}
	logger.Error("event processing failed", zap.Error(err))
	return OutcomeFailed, err
}

func (s *DefaultOrderService) apply(ctx context.Context, ev *models.CanonicalEvent, j *journal) error {
	actor := models.ActorSystem
	data := map[string]any{
		"gateway":          ev.Gateway,
		"providerEventId":  ev.ProviderEventID,
		"paymentReference": ev.PaymentReference,
		"amount":           ev.Amount.StringFixed(2),
	}

	switch ev.Type {
	case models.EventPaymentSucceeded:
		return s.confirmPayment(ctx, ev, actor, data, j)
	case models.EventPaymentFailed:
		return s.failPayment(ctx, ev, actor, data, j)
	case models.EventPayoutSucceeded:
		_, err := s.Wallets.ResolvePayout(ctx, ev.PayoutID, models.PayoutProcessed)
		return err
	case models.EventPayoutFailed:
		_, err := s.Wallets.ResolvePayout(ctx, ev.PayoutID, models.PayoutFailed)
		return err
	}
	return fmt.Errorf("event type %s: %w", ev.Type, models.ErrUnsupportedEvent)
}

// confirmPayment marks the order paid, confirms its booking and activates it.
func (s *DefaultOrderService) confirmPayment(ctx context.Context, ev *models.CanonicalEvent, actor string, data map[string]any, j *journal) error {
	o, err := s.Store.Orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if o.Status.Reached(models.OrderPaymentConfirmed) {
		return nil
	}
	if o.Status != models.OrderAwaitingPayment {
		return &models.TransitionError{OrderID: o.ID, From: o.Status, To: models.OrderPaymentConfirmed}
	}
	if ev.Amount.IsPositive() && o.ChargeAmount.IsPositive() && !ev.Amount.Equal(o.ChargeAmount) {
		s.Logger.Warn("paid amount differs from charge",
			zap.String("orderID", o.ID),
			zap.String("paid", ev.Amount.StringFixed(2)),
			zap.String("charge", o.ChargeAmount.StringFixed(2)))
	}

	paid := models.PaymentPaid
	paidAt := s.now()
	patch := models.OrderPatch{PaymentStatus: &paid, PaidAt: &paidAt}
	if ev.PaymentReference != "" {
		patch.PaymentReference = &ev.PaymentReference
	}
	o, changed, err := s.transition(ctx, o, models.OrderPaymentConfirmed, patch, actor, data, j)
	if err != nil {
		return err
	}
	if changed {
		if err := s.setBooking(ctx, o.ID, models.BookingConfirmed); err != nil {
			return err
		}
	}
	_, _, err = s.transition(ctx, o, models.OrderActive, models.OrderPatch{}, models.ActorSystem, map[string]any{"reason": "activation"}, j)
	return err
}

// failPayment cancels an order whose payment did not go through and releases its booking.
func (s *DefaultOrderService) failPayment(ctx context.Context, ev *models.CanonicalEvent, actor string, data map[string]any, j *journal) error {
	o, err := s.Store.Orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if o.Status == models.OrderCancelled {
		return nil
	}
	if o.Status != models.OrderAwaitingPayment {
		return &models.TransitionError{OrderID: o.ID, From: o.Status, To: models.OrderCancelled}
	}
	_, changed, err := s.transition(ctx, o, models.OrderCancelled, models.OrderPatch{}, actor, data, j)
	if err != nil || !changed {
		return err
	}
	return s.setBooking(ctx, o.ID, models.BookingCancelled)
}
