package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contratto/models"
	"contratto/services/gateway"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const approvalMessage = "SYSTEM: O comprador aprovou o serviço. Pagamento em custódia liberado para a carteira do vendedor."

func (s *DefaultOrderService) CreateOrder(ctx context.Context, buyer models.Identity, input models.CreateOrderInput) (*models.Order, error) {
	if buyer.UserID == "" {
		return nil, fmt.Errorf("anonymous buyer: %w", models.ErrForbidden)
	}
	if input.SellerID == "" || input.ServiceID == "" {
		return nil, fmt.Errorf("seller and service are required: %w", models.ErrInvalidOrder)
	}
	if input.SellerID == buyer.UserID {
		return nil, fmt.Errorf("buyer cannot order their own service: %w", models.ErrInvalidOrder)
	}
	if !input.Price.Equal(input.Price.Round(2)) {
		return nil, fmt.Errorf("price %s has more than two decimals: %w", input.Price, models.ErrInvalidOrder)
	}
	fee, charge, err := gateway.Charge(input.Price, s.Settings.FeeRate)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(input.Currency)
	if currency == "" {
		currency = s.Settings.Currency
	}
	now := s.now()
	o := &models.Order{
		ID:            uuid.New().String(),
		BuyerID:       buyer.UserID,
		SellerID:      input.SellerID,
		ServiceID:     input.ServiceID,
		PackageTier:   input.PackageTier,
		Price:         input.Price,
		PlatformFee:   fee,
		ChargeAmount:  charge,
		Currency:      currency,
		Status:        models.OrderCreated,
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var booking *models.Booking
	if input.Booking != nil {
		if booking, err = newBooking(o.ID, *input.Booking, now); err != nil {
			return nil, err
		}
	}

	if err := s.Store.Orders.CreateOrder(ctx, o, booking); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	j := &journal{}
	j.add(o, "", models.OrderCreated, buyer.UserID, map[string]any{
		"price":       o.Price.StringFixed(2),
		"platformFee": fee.StringFixed(2),
	})
	s.flush(ctx, j)
	return o, nil
}

func newBooking(orderID string, in models.BookingInput, now time.Time) (*models.Booking, error) {
	if _, err := time.Parse("2006-01-02", in.Date); err != nil {
		return nil, fmt.Errorf("booking date %q: %w", in.Date, models.ErrInvalidOrder)
	}
	if _, err := time.Parse("15:04", in.Time); err != nil {
		return nil, fmt.Errorf("booking time %q: %w", in.Time, models.ErrInvalidOrder)
	}
	if in.DurationMinutes < 0 {
		return nil, fmt.Errorf("booking duration: %w", models.ErrInvalidOrder)
	}
	return &models.Booking{
		ID:              uuid.New().String(),
		OrderID:         orderID,
		Date:            in.Date,
		Time:            in.Time,
		DurationMinutes: in.DurationMinutes,
		Status:          models.BookingPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *DefaultOrderService) GetOrder(ctx context.Context, caller models.Identity, orderID string) (*models.Order, *models.Booking, error) {
	o, err := s.load(ctx, caller, orderID)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.Store.Orders.GetBooking(ctx, orderID)
	if errors.Is(err, models.ErrNotFound) {
		return o, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return o, b, nil
}

func (s *DefaultOrderService) History(ctx context.Context, caller models.Identity, orderID string) ([]models.SagaLog, error) {
	if _, err := s.load(ctx, caller, orderID); err != nil {
		return nil, err
	}
	return s.Store.Orders.ListSagaLogs(ctx, orderID)
}

// StartCheckout opens a gateway session and moves the order to AWAITING_PAYMENT.
// Calling it again while awaiting payment replaces the session.
func (s *DefaultOrderService) StartCheckout(ctx context.Context, caller models.Identity, orderID, gatewayName string) (*models.CheckoutSession, error) {
	o, err := s.load(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != caller.UserID {
		return nil, fmt.Errorf("only the buyer can pay order %s: %w", orderID, models.ErrForbidden)
	}
	if o.Status != models.OrderCreated && o.Status != models.OrderAwaitingPayment {
		return nil, &models.TransitionError{OrderID: o.ID, From: o.Status, To: models.OrderAwaitingPayment}
	}
	if gatewayName == "" {
		gatewayName = o.Gateway
	}
	gw, err := s.Gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(s.Settings.AppOrigin, "/") + "/orders/" + o.ID
	session, err := gw.CreateCheckout(ctx, models.CheckoutRequest{
		Order:      o,
		Customer:   caller,
		SuccessURL: base + "?paid=true",
		CancelURL:  base,
	})
	if err != nil {
		return nil, err
	}

	pending := models.PaymentPending
	name := gw.Name()
	patch := models.OrderPatch{
		PaymentStatus:     &pending,
		Gateway:           &name,
		CheckoutReference: &session.ProviderReference,
		PlatformFee:       &session.PlatformFee,
		ChargeAmount:      &session.Amount,
	}

	j := &journal{}
	err = s.Store.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		j.reset()
		_, _, err := s.transition(ctx, o, models.OrderAwaitingPayment, patch, caller.UserID, map[string]any{
			"gateway":           name,
			"providerReference": session.ProviderReference,
			"amount":            session.Amount.StringFixed(2),
		}, j)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, j)
	return session, nil
}

// Approve captures the held funds and releases them to the seller's pending
// balance. Only the buyer may approve; approving twice is harmless.
func (s *DefaultOrderService) Approve(ctx context.Context, caller models.Identity, orderID string) (*models.Order, error) {
	o, err := s.Store.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if caller.UserID == "" || o.BuyerID != caller.UserID {
		s.Logger.Warn("approval rejected", zap.String("orderID", orderID), zap.String("caller", caller.UserID))
		return nil, fmt.Errorf("only the buyer can approve order %s: %w", orderID, models.ErrForbidden)
	}
	if o.Status == models.OrderCompleted {
		return o, nil
	}
	if o.Status != models.OrderActive {
		return nil, &models.TransitionError{OrderID: o.ID, From: o.Status, To: models.OrderCompleted}
	}

	gw, err := s.Gateways.Get(o.Gateway)
	if err != nil {
		return nil, err
	}
	if err := gw.Capture(ctx, o.PaymentReference); err != nil {
		s.Logger.Error("capture failed, order stays active",
			zap.String("orderID", o.ID), zap.String("gateway", gw.Name()), zap.Error(err))
		return nil, err
	}

	var (
		result  *models.Order
		changed bool
	)
	j := &journal{}
	err = s.Store.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		j.reset()
		done := s.now()
		var err error
		result, changed, err = s.transition(ctx, o, models.OrderCompleted, models.OrderPatch{CompletedAt: &done}, caller.UserID, map[string]any{
			"captured":         true,
			"paymentReference": o.PaymentReference,
			"sellerCredit":     o.Price.StringFixed(2),
		}, j)
		if err != nil || !changed {
			return err
		}
		_, err = s.Wallets.CreditEscrow(ctx, o.SellerID, o.Currency, o.Price, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, j)

	if changed {
		msg := &models.Message{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			SenderID:  models.ActorSystem,
			Type:      models.MessageTypeSystem,
			Content:   approvalMessage,
			CreatedAt: s.now(),
		}
		if err := s.Store.Orders.AppendMessage(ctx, msg); err != nil {
			s.Logger.Error("failed to post approval message", zap.String("orderID", o.ID), zap.Error(err))
		}
	}
	return result, nil
}

// Refund returns the buyer's money for a paid order that was not completed.
func (s *DefaultOrderService) Refund(ctx context.Context, caller models.Identity, orderID, reason string) (*models.Order, error) {
	o, err := s.Store.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if caller.UserID == "" || (o.SellerID != caller.UserID && !caller.IsAdmin()) {
		return nil, fmt.Errorf("only the seller or an admin can refund order %s: %w", orderID, models.ErrForbidden)
	}
	if o.Status == models.OrderRefunded {
		return o, nil
	}
	if !models.CanTransition(o.Status, models.OrderRefunded) {
		return nil, &models.TransitionError{OrderID: o.ID, From: o.Status, To: models.OrderRefunded}
	}

	gw, err := s.Gateways.Get(o.Gateway)
	if err != nil {
		return nil, err
	}
	if err := gw.Refund(ctx, o.PaymentReference, reason); err != nil {
		return nil, err
	}

	refunded := models.PaymentRefunded
	var result *models.Order
	j := &journal{}
	err = s.Store.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		j.reset()
		var (
			changed bool
			err     error
		)
		result, changed, err = s.transition(ctx, o, models.OrderRefunded, models.OrderPatch{PaymentStatus: &refunded}, caller.UserID, map[string]any{
			"reason": reason,
		}, j)
		if err != nil || !changed {
			return err
		}
		if _, err := s.Wallets.ReverseEscrow(ctx, o.ID); err != nil {
			return err
		}
		return s.setBooking(ctx, o.ID, models.BookingCancelled)
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, j)
	return result, nil
}

// Cancel withdraws an order before completion. A paid order has its
// authorization voided at the gateway first.
func (s *DefaultOrderService) Cancel(ctx context.Context, caller models.Identity, orderID string) (*models.Order, error) {
	o, err := s.load(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == models.OrderCancelled {
		return o, nil
	}
	if !models.CanTransition(o.Status, models.OrderCancelled) {
		return nil, &models.TransitionError{OrderID: o.ID, From: o.Status, To: models.OrderCancelled}
	}

	var patch models.OrderPatch
	if o.PaymentStatus == models.PaymentPaid {
		gw, err := s.Gateways.Get(o.Gateway)
		if err != nil {
			return nil, err
		}
		if err := gw.Refund(ctx, o.PaymentReference, "order cancelled"); err != nil {
			return nil, err
		}
		refunded := models.PaymentRefunded
		patch.PaymentStatus = &refunded
	}

	return s.cancel(ctx, o, patch, caller.UserID, "cancelled by "+caller.UserID)
}

func (s *DefaultOrderService) cancel(ctx context.Context, o *models.Order, patch models.OrderPatch, actor, reason string) (*models.Order, error) {
	var result *models.Order
	j := &journal{}
	err := s.Store.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		j.reset()
		var (
			changed bool
			err     error
		)
		result, changed, err = s.transition(ctx, o, models.OrderCancelled, patch, actor, map[string]any{"reason": reason}, j)
		if err != nil || !changed {
			return err
		}
		return s.setBooking(ctx, o.ID, models.BookingCancelled)
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, j)
	return result, nil
}
