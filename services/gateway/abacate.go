package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"contratto/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	abacateSignatureHeader = "X-Webhook-Signature"
	defaultAbacateBaseURL  = "https://api.abacatepay.com/v1"
)

// AbacateGateway is the PIX gateway. Billings are paid in one step, so there is
// no separate authorization to capture.
type AbacateGateway struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	HTTP          *http.Client
	FeeRate       decimal.Decimal
	Logger        *zap.Logger
}

func NewAbacateGateway(apiKey, webhookSecret, baseURL string, feeRate decimal.Decimal, logger *zap.Logger) *AbacateGateway {
	if baseURL == "" {
		baseURL = defaultAbacateBaseURL
	}
	return &AbacateGateway{
		APIKey:        apiKey,
		WebhookSecret: webhookSecret,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTP:          &http.Client{Timeout: 15 * time.Second},
		FeeRate:       feeRate,
		Logger:        logger,
	}
}

func (g *AbacateGateway) Name() string { return models.GatewayAbacate }

type abacateProduct struct {
	ExternalID  string `json:"externalId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Quantity    int    `json:"quantity"`
}

type abacateCustomer struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Cellphone string `json:"cellphone"`
	TaxID     string `json:"taxId"`
}

type abacateBillingRequest struct {
	Frequency     string           `json:"frequency"`
	Methods       []string         `json:"methods"`
	Products      []abacateProduct `json:"products"`
	ReturnURL     string           `json:"returnUrl"`
	CompletionURL string           `json:"completionUrl"`
	Customer      abacateCustomer  `json:"customer"`
	ExternalID    string           `json:"externalId"`
}

type abacateBillingResponse struct {
	Data *struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"data"`
	Error any `json:"error"`
}

func (g *AbacateGateway) fail(op string, err error) error {
	if g.Logger != nil {
		g.Logger.Error("abacate call failed", zap.String("op", op), zap.Error(err))
	}
	return &models.GatewayError{Gateway: models.GatewayAbacate, Op: op, Err: err}
}

func (g *AbacateGateway) CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	if req.Order == nil {
		return nil, fmt.Errorf("checkout without order: %w", models.ErrInvalidOrder)
	}
	o := req.Order
	fee, charge, err := Charge(o.Price, g.FeeRate)
	if err != nil {
		return nil, err
	}
	chargeCents, err := models.Cents(charge)
	if err != nil {
		return nil, err
	}

	shortID := o.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	name := req.Customer.Name
	if name == "" {
		name, _, _ = strings.Cut(req.Customer.Email, "@")
	}
	if name == "" {
		name = "Cliente Contratto"
	}
	phone := req.Customer.Phone
	if phone == "" {
		phone = "00999999999"
	}
	taxID := req.Customer.TaxID
	if taxID == "" {
		taxID = "000.000.000-00"
	}
	payload := abacateBillingRequest{
		Frequency: "ONE_TIME",
		Methods:   []string{"PIX", "CARD"},
		Products: []abacateProduct{{
			ExternalID:  o.ServiceID,
			Name:        productName(o),
			Description: "Pedido #" + shortID,
			Amount:      chargeCents,
			Quantity:    1,
		}},
		ReturnURL:     req.CancelURL,
		CompletionURL: req.SuccessURL,
		Customer: abacateCustomer{
			Name:      name,
			Email:     req.Customer.Email,
			Cellphone: phone,
			TaxID:     taxID,
		},
		ExternalID: o.ID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/billing/create", bytes.NewReader(body))
	if err != nil {
		return nil, g.fail("create billing", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(httpReq)
	if err != nil {
		return nil, g.fail("create billing", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, g.fail("create billing", err)
	}
	var result abacateBillingResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, g.fail("create billing", fmt.Errorf("status %d: undecodable body", resp.StatusCode))
	}
	if resp.StatusCode >= 300 || result.Error != nil || result.Data == nil || result.Data.URL == "" {
		return nil, g.fail("create billing", fmt.Errorf("status %d: %v", resp.StatusCode, result.Error))
	}

	return &models.CheckoutSession{
		Gateway:           g.Name(),
		URL:               result.Data.URL,
		ProviderReference: result.Data.ID,
		Amount:            charge,
		PlatformFee:       fee,
	}, nil
}

type abacateWebhook struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  struct {
		ID         string `json:"id"`
		Amount     int64  `json:"amount"`
		Status     string `json:"status"`
		ExternalID string `json:"externalId"`
	} `json:"data"`
}

// Sign returns the hex HMAC-SHA256 of body under the webhook secret.
func (g *AbacateGateway) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(g.WebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *AbacateGateway) VerifyAndParseWebhook(headers http.Header, body []byte) (*models.CanonicalEvent, error) {
	if g.WebhookSecret == "" {
		return nil, fmt.Errorf("abacate webhook secret not configured: %w", models.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(strings.TrimSpace(headers.Get(abacateSignatureHeader)))
	if err != nil || len(got) == 0 {
		return nil, fmt.Errorf("malformed abacate signature: %w", models.ErrInvalidSignature)
	}
	want, _ := hex.DecodeString(g.Sign(body))
	if !hmac.Equal(got, want) {
		return nil, fmt.Errorf("abacate signature mismatch: %w", models.ErrInvalidSignature)
	}

	var payload abacateWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode abacate webhook: %w", err)
	}

	ev := &models.CanonicalEvent{
		Gateway:          g.Name(),
		ProviderEventID:  payload.ID,
		PaymentReference: payload.Data.ID,
		Amount:           models.FromCents(payload.Data.Amount),
		PayloadHash:      PayloadHash(body),
		ReceivedAt:       time.Now().UTC(),
	}
	if ev.ProviderEventID == "" {
		ev.ProviderEventID = payload.Event + ":" + payload.Data.ID
	}

	switch payload.Event {
	case "billing.paid":
		ev.Type = models.EventPaymentSucceeded
		ev.OrderID = payload.Data.ExternalID
	case "billing.expired", "billing.cancelled", "billing.failed":
		ev.Type = models.EventPaymentFailed
		ev.OrderID = payload.Data.ExternalID
	case "withdraw.done":
		ev.Type = models.EventPayoutSucceeded
		ev.PayoutID = payload.Data.ExternalID
	case "withdraw.failed":
		ev.Type = models.EventPayoutFailed
		ev.PayoutID = payload.Data.ExternalID
	default:
		return nil, fmt.Errorf("abacate event %s: %w", payload.Event, models.ErrUnsupportedEvent)
	}

	if ev.OrderID == "" && ev.PayoutID == "" {
		return nil, fmt.Errorf("abacate event %s carries no externalId: %w", payload.Event, models.ErrUnsupportedEvent)
	}
	return ev, nil
}

// Capture is a no-op: a paid billing is already settled.
func (g *AbacateGateway) Capture(ctx context.Context, paymentReference string) error {
	return nil
}

// Refund always fails: Abacate Pay billings cannot be refunded through the API.
func (g *AbacateGateway) Refund(ctx context.Context, paymentReference, reason string) error {
	return fmt.Errorf("abacate billing %s: %w", paymentReference, models.ErrRefundUnsupported)
}
