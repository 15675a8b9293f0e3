package order

import (
	"context"
	"errors"

	"contratto/models"
	"contratto/services/gateway"

	"go.uber.org/zap"
)

const jobBatch = 100

// ExpireAbandoned cancels orders whose checkout was never completed.
func (s *DefaultOrderService) ExpireAbandoned(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.Settings.CheckoutExpiry)
	expired := 0
	for _, status := range []models.OrderStatus{models.OrderCreated, models.OrderAwaitingPayment} {
		orders, err := s.Store.Orders.ListByStatus(ctx, status, cutoff, jobBatch)
		if err != nil {
			return expired, err
		}
		for i := range orders {
			o := &orders[i]
			_, err := s.cancel(ctx, o, models.OrderPatch{}, models.ActorSystem, "checkout expired")
			if errors.Is(err, models.ErrInvalidStateTransition) {
				continue
			}
			if err != nil {
				s.Logger.Error("failed to expire order", zap.String("orderID", o.ID), zap.Error(err))
				continue
			}
			expired++
		}
	}
	if expired > 0 {
		s.Logger.Info("abandoned checkouts expired", zap.Int("count", expired))
	}
	return expired, nil
}

// Reconcile asks the gateways about orders still awaiting payment and feeds
// what they report through HandleEvent, for webhooks that never arrived.
func (s *DefaultOrderService) Reconcile(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.Settings.ReconcileAfter)
	orders, err := s.Store.Orders.ListByStatus(ctx, models.OrderAwaitingPayment, cutoff, jobBatch)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range orders {
		o := &orders[i]
		if o.CheckoutReference == "" {
			continue
		}
		gw, err := s.Gateways.Get(o.Gateway)
		if err != nil {
			continue
		}
		lookup, ok := gw.(gateway.PaymentLookup)
		if !ok {
			continue
		}
		res, err := lookup.LookupPayment(ctx, o.CheckoutReference)
		if err != nil {
			s.Logger.Warn("payment lookup failed", zap.String("orderID", o.ID), zap.Error(err))
			continue
		}

		ev := &models.CanonicalEvent{
			Gateway:          gw.Name(),
			OrderID:          o.ID,
			PaymentReference: res.PaymentReference,
			Amount:           res.Amount,
			ReceivedAt:       s.now(),
		}
		switch res.Status {
		case models.LookupPaid:
			ev.Type = models.EventPaymentSucceeded
			ev.ProviderEventID = "reconcile:" + o.ID
		case models.LookupExpired:
			ev.Type = models.EventPaymentFailed
			ev.ProviderEventID = "reconcile-expired:" + o.ID
		default:
			continue
		}

		outcome, err := s.HandleEvent(ctx, ev)
		if err != nil {
			s.Logger.Error("reconciliation event failed", zap.String("orderID", o.ID), zap.Error(err))
			continue
		}
		if outcome == OutcomeProcessed {
			applied++
		}
	}
	return applied, nil
}
