package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"contratto/models"
)

// Gateway is one payment provider behind a uniform checkout and webhook surface.
type Gateway interface {
	Name() string
	// CreateCheckout opens a hosted checkout for price + platform fee.
	CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
	// VerifyAndParseWebhook checks the delivery signature before reading the
	// payload. Any verification failure returns models.ErrInvalidSignature.
	VerifyAndParseWebhook(headers http.Header, body []byte) (*models.CanonicalEvent, error)
	// Capture settles held funds. Funds that were already captured count as success.
	Capture(ctx context.Context, paymentReference string) error
	// Refund voids or refunds the payment.
	Refund(ctx context.Context, paymentReference, reason string) error
}

// PaymentLookup is implemented by gateways that can report a checkout's
// payment state out of band, used by reconciliation.
type PaymentLookup interface {
	LookupPayment(ctx context.Context, checkoutReference string) (*models.PaymentLookup, error)
}

// Registry selects a gateway by name.
type Registry struct {
	gateways map[string]Gateway
	def      string
}

// NewRegistry registers gateways; the first one is the default.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		if r.def == "" {
			r.def = g.Name()
		}
		r.gateways[g.Name()] = g
	}
	return r
}

// Get returns the named gateway, or the default one for an empty name.
func (r *Registry) Get(name string) (Gateway, error) {
	if name == "" {
		name = r.def
	}
	g, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown payment gateway %q: %w", name, models.ErrInvalidOrder)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// PayloadHash fingerprints a raw webhook body.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
