package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"contratto/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

type fakeStripe struct {
	session    *stripe.CheckoutSessionParams
	pi         *stripe.PaymentIntent
	captureErr error
	captured   int
	cancelled  int
	refunded   int
	refundErr  error
	lookup     *stripe.CheckoutSession
}

func (f *fakeStripe) NewCheckoutSession(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.session = p
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeStripe) GetCheckoutSession(id string, p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.lookup, nil
}

func (f *fakeStripe) CapturePaymentIntent(id string, p *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	f.captured++
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func (f *fakeStripe) GetPaymentIntent(id string, p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.pi, nil
}

func (f *fakeStripe) CancelPaymentIntent(id string, p *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.cancelled++
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

func (f *fakeStripe) NewRefund(p *stripe.RefundParams) (*stripe.Refund, error) {
	f.refunded++
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &stripe.Refund{ID: "re_1"}, nil
}

const testStripeSecret = "whsec_test"

func newTestStripe(api stripeAPI) *StripeGateway {
	return &StripeGateway{
		api:           api,
		webhookSecret: testStripeSecret,
		feeRate:       decimal.RequireFromString("0.05"),
		logger:        zap.NewNop(),
		tolerance:     5 * time.Minute,
	}
}

func stripeHeader(secret string, body []byte, at time.Time) http.Header {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	h := http.Header{}
	h.Set("Stripe-Signature", "t="+ts+",v1="+hex.EncodeToString(mac.Sum(nil)))
	return h
}

func stripeEvent(id, typ, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2023-10-16","type":%q,"data":{"object":%s}}`, id, typ, object))
}

func TestStripeCreateCheckoutChargesPricePlusFee(t *testing.T) {
	api := &fakeStripe{}
	g := newTestStripe(api)

	order := &models.Order{ID: "order-1", ServiceID: "svc-1", Price: decimal.RequireFromString("100"), Currency: "brl"}
	sess, err := g.CreateCheckout(context.Background(), models.CheckoutRequest{
		Order:      order,
		Customer:   models.Identity{UserID: "buyer-1", Email: "buyer@example.com"},
		SuccessURL: "https://app.test/orders/order-1?paid=true",
		CancelURL:  "https://app.test/orders/order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", sess.ProviderReference)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", sess.URL)
	assert.True(t, sess.Amount.Equal(decimal.RequireFromString("105")))
	assert.True(t, sess.PlatformFee.Equal(decimal.RequireFromString("5")))

	require.NotNil(t, api.session)
	require.Len(t, api.session.LineItems, 1)
	assert.Equal(t, int64(10500), *api.session.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, string(stripe.PaymentIntentCaptureMethodManual), *api.session.PaymentIntentData.CaptureMethod)
	assert.Equal(t, "order-1", api.session.Metadata["order_id"])
	assert.Equal(t, "order-1", api.session.PaymentIntentData.Metadata["order_id"])
}

func TestStripeWebhookCheckoutCompleted(t *testing.T) {
	g := newTestStripe(&fakeStripe{})
	body := stripeEvent("evt_1", "checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session","amount_total":10500,"client_reference_id":"order-1","payment_intent":"pi_1","metadata":{"order_id":"order-1"}}`)

	ev, err := g.VerifyAndParseWebhook(stripeHeader(testStripeSecret, body, time.Now()), body)
	require.NoError(t, err)
	assert.Equal(t, models.EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "order-1", ev.OrderID)
	assert.Equal(t, "pi_1", ev.PaymentReference)
	assert.Equal(t, "evt_1", ev.ProviderEventID)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("105")))
	assert.Equal(t, PayloadHash(body), ev.PayloadHash)
}

func TestStripeWebhookPaymentFailed(t *testing.T) {
	g := newTestStripe(&fakeStripe{})
	body := stripeEvent("evt_2", "payment_intent.payment_failed",
		`{"id":"pi_2","object":"payment_intent","amount":10500,"metadata":{"order_id":"order-2"}}`)

	ev, err := g.VerifyAndParseWebhook(stripeHeader(testStripeSecret, body, time.Now()), body)
	require.NoError(t, err)
	assert.Equal(t, models.EventPaymentFailed, ev.Type)
	assert.Equal(t, "order-2", ev.OrderID)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	g := newTestStripe(&fakeStripe{})
	body := stripeEvent("evt_3", "checkout.session.completed", `{"id":"cs_3","metadata":{"order_id":"order-3"}}`)

	_, err := g.VerifyAndParseWebhook(stripeHeader("whsec_other", body, time.Now()), body)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)

	_, err = g.VerifyAndParseWebhook(http.Header{}, body)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)

	stale := stripeHeader(testStripeSecret, body, time.Now().Add(-time.Hour))
	_, err = g.VerifyAndParseWebhook(stale, body)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)

	tampered := append([]byte{}, body...)
	tampered[len(tampered)-3] = ' '
	_, err = g.VerifyAndParseWebhook(stripeHeader(testStripeSecret, body, time.Now()), tampered)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)

	g.webhookSecret = ""
	_, err = g.VerifyAndParseWebhook(stripeHeader("", body, time.Now()), body)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)
}

func TestStripeWebhookUnsupportedEvent(t *testing.T) {
	g := newTestStripe(&fakeStripe{})
	body := stripeEvent("evt_4", "customer.created", `{"id":"cus_1","object":"customer"}`)

	_, err := g.VerifyAndParseWebhook(stripeHeader(testStripeSecret, body, time.Now()), body)
	assert.ErrorIs(t, err, models.ErrUnsupportedEvent)
}

func TestStripeCaptureTreatsAlreadyCapturedAsSuccess(t *testing.T) {
	api := &fakeStripe{
		captureErr: &stripe.Error{Code: stripe.ErrorCodePaymentIntentUnexpectedState, Msg: "already captured"},
		pi:         &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded},
	}
	g := newTestStripe(api)

	require.NoError(t, g.Capture(context.Background(), "pi_1"))
	assert.Equal(t, 1, api.captured)
}

func TestStripeCaptureFailureIsGatewayUnavailable(t *testing.T) {
	api := &fakeStripe{
		captureErr: &stripe.Error{Code: stripe.ErrorCodeRateLimit, Msg: "slow down"},
		pi:         &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresCapture},
	}
	g := newTestStripe(api)

	err := g.Capture(context.Background(), "pi_1")
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
}

func TestStripeRefundVoidsUncapturedIntent(t *testing.T) {
	api := &fakeStripe{pi: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresCapture}}
	g := newTestStripe(api)

	require.NoError(t, g.Refund(context.Background(), "pi_1", "seller refund"))
	assert.Equal(t, 1, api.cancelled)
	assert.Equal(t, 0, api.refunded)
}

func TestStripeRefundCapturedIntent(t *testing.T) {
	api := &fakeStripe{
		pi:        &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded},
		refundErr: &stripe.Error{Code: stripe.ErrorCodeChargeAlreadyRefunded},
	}
	g := newTestStripe(api)

	require.NoError(t, g.Refund(context.Background(), "pi_1", ""))
	assert.Equal(t, 1, api.refunded)
	assert.Equal(t, 0, api.cancelled)
}

func TestStripeLookupPayment(t *testing.T) {
	api := &fakeStripe{lookup: &stripe.CheckoutSession{
		ID:            "cs_1",
		Status:        stripe.CheckoutSessionStatusComplete,
		AmountTotal:   10500,
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
	}}
	g := newTestStripe(api)

	res, err := g.LookupPayment(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.LookupPaid, res.Status)
	assert.Equal(t, "pi_1", res.PaymentReference)

	api.lookup.Status = stripe.CheckoutSessionStatusExpired
	res, err = g.LookupPayment(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.LookupExpired, res.Status)
}
