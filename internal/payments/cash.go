package payments

import (
	"context"

	"github.com/inzira/ticketing-core/internal/models"
)

// CashProvider settles payments collected in person. There is no remote
// party: initiation succeeds immediately and refunds are recorded locally.
type CashProvider struct{}

// NewCashProvider creates a cash provider
func NewCashProvider() *CashProvider {
	return &CashProvider{}
}

func (p *CashProvider) Name() string { return "cash" }

func (p *CashProvider) Method() models.PaymentMethod { return models.PaymentMethodCash }

func (p *CashProvider) RequiresRedirect() bool { return false }

func (p *CashProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	return nil, models.NewDomainError(models.KindInvalidState, "cash payments have no checkout")
}

func (p *CashProvider) Lookup(ctx context.Context, sessionID string) (*Lookup, error) {
	return nil, models.NewDomainError(models.KindInvalidState, "cash payments cannot be looked up")
}

func (p *CashProvider) ParseWebhook(body []byte, signatureHeader string) (*Event, error) {
	return nil, models.NewDomainError(models.KindSignatureInvalid, "cash payments have no webhook")
}

func (p *CashProvider) ParseCallback(body []byte) (*Event, error) {
	return nil, models.NewDomainError(models.KindInvalidPayload, "cash payments have no callback")
}

func (p *CashProvider) Refund(ctx context.Context, payment *models.Payment, amount float64) error {
	return nil
}
