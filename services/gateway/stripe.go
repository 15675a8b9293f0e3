package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"contratto/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// stripeAPI is the slice of the Stripe client the gateway calls.
type stripeAPI interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CapturePaymentIntent(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type sdkClient struct {
	api *client.API
}

func (c sdkClient) NewCheckoutSession(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.api.CheckoutSessions.New(p)
}

func (c sdkClient) GetCheckoutSession(id string, p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.api.CheckoutSessions.Get(id, p)
}

func (c sdkClient) CapturePaymentIntent(id string, p *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Capture(id, p)
}

func (c sdkClient) GetPaymentIntent(id string, p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Get(id, p)
}

func (c sdkClient) CancelPaymentIntent(id string, p *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Cancel(id, p)
}

func (c sdkClient) NewRefund(p *stripe.RefundParams) (*stripe.Refund, error) {
	return c.api.Refunds.New(p)
}

// StripeGateway is the card gateway. Checkout sessions authorize with manual
// capture so funds stay on hold until the buyer approves the order.
type StripeGateway struct {
	api           stripeAPI
	webhookSecret string
	feeRate       decimal.Decimal
	logger        *zap.Logger
	// Tolerance for webhook timestamps.
	tolerance time.Duration
}

func NewStripeGateway(secretKey, webhookSecret string, feeRate decimal.Decimal, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		api:           sdkClient{api: client.New(secretKey, nil)},
		webhookSecret: webhookSecret,
		feeRate:       feeRate,
		logger:        logger,
		tolerance:     webhook.DefaultTolerance,
	}
}

func (g *StripeGateway) Name() string { return models.GatewayStripe }

func (g *StripeGateway) fail(op string, err error) error {
	g.logger.Error("stripe call failed", zap.String("op", op), zap.Error(err))
	return &models.GatewayError{Gateway: models.GatewayStripe, Op: op, Err: err}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	if req.Order == nil {
		return nil, fmt.Errorf("checkout without order: %w", models.ErrInvalidOrder)
	}
	o := req.Order
	fee, charge, err := Charge(o.Price, g.feeRate)
	if err != nil {
		return nil, err
	}
	chargeCents, err := models.Cents(charge)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(o.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(productName(o)),
				},
				UnitAmount: stripe.Int64(chargeCents),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		},
		ClientReferenceID: stripe.String(o.ID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	params.Context = ctx
	params.AddMetadata("order_id", o.ID)
	params.AddMetadata("platform_fee", fee.StringFixed(2))
	params.PaymentIntentData.AddMetadata("order_id", o.ID)
	params.PaymentIntentData.AddMetadata("platform_fee", fee.StringFixed(2))

	sess, err := g.api.NewCheckoutSession(params)
	if err != nil {
		return nil, g.fail("create checkout session", err)
	}
	return &models.CheckoutSession{
		Gateway:           g.Name(),
		URL:               sess.URL,
		ProviderReference: sess.ID,
		Amount:            charge,
		PlatformFee:       fee,
	}, nil
}

func productName(o *models.Order) string {
	if o.PackageTier != "" {
		return fmt.Sprintf("Service %s (%s)", o.ServiceID, o.PackageTier)
	}
	return "Service " + o.ServiceID
}

func (g *StripeGateway) VerifyAndParseWebhook(headers http.Header, body []byte) (*models.CanonicalEvent, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret not configured: %w", models.ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(body, headers.Get("Stripe-Signature"), g.webhookSecret,
		webhook.ConstructEventOptions{Tolerance: g.tolerance, IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrInvalidSignature)
	}

	ev := &models.CanonicalEvent{
		Gateway:         g.Name(),
		ProviderEventID: event.ID,
		PayloadHash:     PayloadHash(body),
		ReceivedAt:      time.Now().UTC(),
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		ev.Type = models.EventPaymentSucceeded
		if event.Type == "checkout.session.expired" {
			ev.Type = models.EventPaymentFailed
		}
		ev.OrderID = sess.Metadata["order_id"]
		if ev.OrderID == "" {
			ev.OrderID = sess.ClientReferenceID
		}
		if sess.PaymentIntent != nil {
			ev.PaymentReference = sess.PaymentIntent.ID
		}
		ev.Amount = models.FromCents(sess.AmountTotal)

	case "payment_intent.succeeded", "payment_intent.amount_capturable_updated", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		ev.Type = models.EventPaymentSucceeded
		if event.Type == "payment_intent.payment_failed" {
			ev.Type = models.EventPaymentFailed
		}
		ev.OrderID = pi.Metadata["order_id"]
		ev.PaymentReference = pi.ID
		ev.Amount = models.FromCents(pi.Amount)

	case "payout.paid", "payout.failed":
		var p stripe.Payout
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("decode payout: %w", err)
		}
		ev.Type = models.EventPayoutSucceeded
		if event.Type == "payout.failed" {
			ev.Type = models.EventPayoutFailed
		}
		ev.PayoutID = p.Metadata["payout_id"]
		ev.Amount = models.FromCents(p.Amount)

	default:
		return nil, fmt.Errorf("stripe event %s: %w", event.Type, models.ErrUnsupportedEvent)
	}

	if ev.OrderID == "" && ev.PayoutID == "" {
		return nil, fmt.Errorf("stripe event %s carries no order or payout reference: %w", event.ID, models.ErrUnsupportedEvent)
	}
	return ev, nil
}

func (g *StripeGateway) Capture(ctx context.Context, paymentReference string) error {
	if paymentReference == "" {
		return fmt.Errorf("no payment intent to capture: %w", models.ErrInvalidOrder)
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + paymentReference)

	_, err := g.api.CapturePaymentIntent(paymentReference, params)
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
		getParams := &stripe.PaymentIntentParams{}
		getParams.Context = ctx
		pi, gerr := g.api.GetPaymentIntent(paymentReference, getParams)
		if gerr == nil && pi.Status == stripe.PaymentIntentStatusSucceeded {
			g.logger.Info("payment intent already captured", zap.String("paymentIntent", paymentReference))
			return nil
		}
	}
	return g.fail("capture payment intent", err)
}

// Refund cancels an uncaptured intent and refunds a captured one.
func (g *StripeGateway) Refund(ctx context.Context, paymentReference, reason string) error {
	if paymentReference == "" {
		return fmt.Errorf("no payment intent to refund: %w", models.ErrInvalidOrder)
	}
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := g.api.GetPaymentIntent(paymentReference, getParams)
	if err != nil {
		return g.fail("get payment intent", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusCanceled:
		return nil
	case stripe.PaymentIntentStatusRequiresCapture:
		params := &stripe.PaymentIntentCancelParams{}
		params.Context = ctx
		params.SetIdempotencyKey("cancel-" + paymentReference)
		if _, err := g.api.CancelPaymentIntent(paymentReference, params); err != nil {
			return g.fail("cancel payment intent", err)
		}
		return nil
	}

	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentReference)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + paymentReference)
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	if _, err := g.api.NewRefund(params); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return nil
		}
		return g.fail("create refund", err)
	}
	return nil
}

// LookupPayment reads a checkout session for reconciliation.
func (g *StripeGateway) LookupPayment(ctx context.Context, checkoutReference string) (*models.PaymentLookup, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.api.GetCheckoutSession(checkoutReference, params)
	if err != nil {
		return nil, g.fail("get checkout session", err)
	}

	out := &models.PaymentLookup{Status: models.LookupPending, Amount: models.FromCents(sess.AmountTotal)}
	if sess.PaymentIntent != nil {
		out.PaymentReference = sess.PaymentIntent.ID
	}
	switch {
	case sess.Status == stripe.CheckoutSessionStatusComplete:
		out.Status = models.LookupPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		out.Status = models.LookupExpired
	}
	return out, nil
}
