// Package payments holds the payment provider integrations. Each provider
// turns its own wire format into the small set of outcomes the reconciliation
// engine understands.
package payments

import (
	"context"

	"github.com/inzira/ticketing-core/internal/models"
)

// Outcome is what a provider says happened to a payment
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeFailed   Outcome = "failed"
	OutcomeRefunded Outcome = "refunded"
	OutcomePending  Outcome = "pending"
	OutcomeIgnored  Outcome = "ignored"
)

// TargetStatus maps an outcome to the payment status it drives
func (o Outcome) TargetStatus() (models.PaymentStatus, bool) {
	switch o {
	case OutcomePaid:
		return models.PaymentStatusSuccess, true
	case OutcomeFailed:
		return models.PaymentStatusFailed, true
	case OutcomeRefunded:
		return models.PaymentStatusRefunded, true
	}
	return "", false
}

// CheckoutRequest asks a redirect provider for a hosted payment page
type CheckoutRequest struct {
	TransactionReference string
	BookingReference     string
	Amount               float64
	Currency             string
	CustomerName         string
	CustomerEmail        string
	CustomerPhone        string
	Description          string
}

// CheckoutSession is the provider's answer to a checkout request
type CheckoutSession struct {
	SessionID string
	URL       string
}

// Event is a parsed provider notification (webhook or callback)
type Event struct {
	ID                   string
	Type                 string
	Outcome              Outcome
	TransactionReference string
	SessionID            string
	Amount               *float64
	FailureReason        string
}

// Lookup is the provider's authoritative view of a checkout session
type Lookup struct {
	SessionID            string
	TransactionReference string
	Outcome              Outcome
	ProviderStatus       string
	Amount               *float64
}

// Provider is one payment integration
type Provider interface {
	Name() string
	Method() models.PaymentMethod
	// RequiresRedirect is false for methods settled on the spot (cash)
	RequiresRedirect() bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Lookup(ctx context.Context, sessionID string) (*Lookup, error)
	ParseWebhook(body []byte, signatureHeader string) (*Event, error)
	ParseCallback(body []byte) (*Event, error)
	Refund(ctx context.Context, payment *models.Payment, amount float64) error
}

// Registry selects a provider by payment method
type Registry struct {
	providers map[models.PaymentMethod]Provider
}

// NewRegistry creates a registry holding the given providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.PaymentMethod]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Method()] = p
	}
	return r
}

// Get returns the provider for a method
func (r *Registry) Get(method models.PaymentMethod) (Provider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, models.NewDomainError(models.KindInvalidPayload, "unsupported payment method %q", method)
	}
	return p, nil
}

// ByName returns the provider whose Name matches, for provider-addressed routes
func (r *Registry) ByName(name string) (Provider, error) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, models.NewDomainError(models.KindNotFound, "unknown payment provider %q", name)
}

// providerError wraps an upstream failure as a retryable domain error
func providerError(provider string, err error) error {
	return models.WrapDomainError(models.KindProviderError, err, "%s request failed", provider)
}
