package payments

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inzira/ticketing-core/internal/config"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/sirupsen/logrus"
)

// PAYableEnvironmentURLs maps environment names to their IPG endpoint URLs
var PAYableEnvironmentURLs = map[string]string{
	"dev":        "https://payable-ipg-dev.web.app/ipg/dev",
	"sandbox":    "https://sandboxipgpayment.payable.lk/ipg/sandbox",
	"production": "https://ipgpayment.payable.lk/ipg/pro",
}

// PAYableProvider integrates the PAYable hosted payment gateway
type PAYableProvider struct {
	config      *config.PAYableConfig
	logger      *logrus.Logger
	client      *http.Client
	endpointURL string
}

// NewPAYableProvider creates a new PAYable provider
func NewPAYableProvider(cfg *config.PAYableConfig, logger *logrus.Logger) *PAYableProvider {
	endpointURL, ok := PAYableEnvironmentURLs[cfg.Environment]
	if !ok {
		endpointURL = PAYableEnvironmentURLs["sandbox"]
	}
	return &PAYableProvider{
		config:      cfg,
		logger:      logger,
		client:      &http.Client{Timeout: 30 * time.Second},
		endpointURL: endpointURL,
	}
}

func (p *PAYableProvider) Name() string { return "payable" }

func (p *PAYableProvider) Method() models.PaymentMethod { return models.PaymentMethodPAYable }

func (p *PAYableProvider) RequiresRedirect() bool { return true }

// payableCheckoutRequest is the IPG payment request body.
// merchantToken is never sent; it only feeds the checkValue.
type payableCheckoutRequest struct {
	MerchantKey         string `json:"merchantKey"`
	LogoURL             string `json:"logoUrl,omitempty"`
	ReturnURL           string `json:"returnUrl"`
	WebhookURL          string `json:"webhookUrl,omitempty"`
	PaymentType         int    `json:"paymentType"` // 1 = one-time
	InvoiceID           string `json:"invoiceId"`
	Amount              string `json:"amount"`
	CurrencyCode        string `json:"currencyCode"`
	OrderDescription    string `json:"orderDescription,omitempty"`
	CustomerFirstName   string `json:"customerFirstName"`
	CustomerLastName    string `json:"customerLastName"`
	CustomerEmail       string `json:"customerEmail"`
	CustomerMobilePhone string `json:"customerMobilePhone"`
	CheckValue          string `json:"checkValue"`
	IntegrationType     string `json:"integrationType"`
	IntegrationVersion  string `json:"integrationVersion"`
}

type payableCheckoutResponse struct {
	Status          string `json:"status"`
	UID             string `json:"uid"`
	StatusIndicator string `json:"statusIndicator"`
	PaymentPage     string `json:"paymentPage"`
	Message         string `json:"message,omitempty"`
}

type payableStatusResponse struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"` // pending, success, failed, cancelled
	Amount        string `json:"amount"`
	InvoiceID     string `json:"invoiceId"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// payableNotification is what PAYable posts to the webhook URL. It carries no
// signature, so it is handled as a low-trust callback and re-verified.
type payableNotification struct {
	UID             string `json:"uid"`
	InvoiceID       string `json:"invoiceId"`
	Amount          string `json:"amount"`
	CurrencyCode    string `json:"currencyCode"`
	PaymentStatus   string `json:"paymentStatus"` // SUCCESS, FAILED, CANCELLED
	TransactionID   string `json:"transactionId,omitempty"`
	StatusIndicator string `json:"statusIndicator"`
}

// GenerateCheckValue creates the SHA-512 checkValue:
// SHA512("merchantKey|invoiceId|amount|currencyCode|SHA512(merchantToken)"), uppercase hex
func (p *PAYableProvider) GenerateCheckValue(invoiceID, amount, currencyCode string) string {
	hash1 := sha512.Sum512([]byte(p.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s", p.config.MerchantKey, invoiceID, amount, currencyCode, hash1Hex)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// CreateCheckout registers the payment with PAYable and returns its payment page
func (p *PAYableProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if !p.IsConfigured() {
		return nil, providerError(p.Name(), fmt.Errorf("missing merchant credentials"))
	}

	amount := strconv.FormatFloat(req.Amount, 'f', 2, 64)
	firstName, lastName := splitName(req.CustomerName)

	body := &payableCheckoutRequest{
		MerchantKey:         p.config.MerchantKey,
		LogoURL:             p.config.LogoURL,
		ReturnURL:           p.config.ReturnURL,
		WebhookURL:          p.config.WebhookURL,
		PaymentType:         1,
		InvoiceID:           req.TransactionReference,
		Amount:              amount,
		CurrencyCode:        req.Currency,
		OrderDescription:    req.Description,
		CustomerFirstName:   firstName,
		CustomerLastName:    lastName,
		CustomerEmail:       req.CustomerEmail,
		CustomerMobilePhone: req.CustomerPhone,
		CheckValue:          p.GenerateCheckValue(req.TransactionReference, amount, req.Currency),
		IntegrationType:     "Ticketing",
		IntegrationVersion:  "1.0.0",
	}

	var resp payableCheckoutResponse
	if err := p.post(ctx, p.endpointURL, body, &resp); err != nil {
		return nil, err
	}

	// PAYable answers "PENDING" when the page is ready, "success" on older APIs
	if resp.Status != "success" && resp.Status != "PENDING" {
		return nil, providerError(p.Name(), fmt.Errorf("initiation rejected: %s", resp.Message))
	}
	if resp.PaymentPage == "" {
		return nil, providerError(p.Name(), fmt.Errorf("no payment page returned"))
	}

	p.logger.WithFields(logrus.Fields{
		"transaction_reference": req.TransactionReference,
		"uid":                   resp.UID,
	}).Info("PAYable payment initiated")

	return &CheckoutSession{
		SessionID: resp.UID + ":" + resp.StatusIndicator,
		URL:       resp.PaymentPage,
	}, nil
}

// Lookup queries the check-status endpoint. sessionID is "uid:statusIndicator".
func (p *PAYableProvider) Lookup(ctx context.Context, sessionID string) (*Lookup, error) {
	uid, indicator, ok := strings.Cut(sessionID, ":")
	if !ok || uid == "" {
		return nil, models.NewDomainError(models.KindInvalidPayload, "malformed PAYable session id")
	}

	statusURL := strings.Replace(p.endpointURL, "/ipg/", "/check-status/", 1)
	var resp payableStatusResponse
	if err := p.post(ctx, statusURL, map[string]string{"uid": uid, "statusIndicator": indicator}, &resp); err != nil {
		return nil, err
	}

	return &Lookup{
		SessionID:            sessionID,
		TransactionReference: resp.InvoiceID,
		Outcome:              payableOutcome(resp.PaymentStatus),
		ProviderStatus:       resp.PaymentStatus,
		Amount:               parseAmount(resp.Amount),
	}, nil
}

// ParseWebhook is unsupported: PAYable notifications are unsigned
func (p *PAYableProvider) ParseWebhook(body []byte, signatureHeader string) (*Event, error) {
	return nil, models.NewDomainError(models.KindSignatureInvalid, "PAYable notifications are not signed")
}

// ParseCallback parses the unsigned PAYable notification
func (p *PAYableProvider) ParseCallback(body []byte) (*Event, error) {
	var n payableNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, models.WrapDomainError(models.KindInvalidPayload, err, "invalid PAYable notification")
	}
	if n.UID == "" || n.InvoiceID == "" {
		return nil, models.NewDomainError(models.KindInvalidPayload, "PAYable notification missing uid or invoiceId")
	}

	event := &Event{
		ID:                   n.TransactionID,
		Type:                 "payable." + strings.ToLower(n.PaymentStatus),
		Outcome:              payableOutcome(n.PaymentStatus),
		TransactionReference: n.InvoiceID,
		SessionID:            n.UID + ":" + n.StatusIndicator,
		Amount:               parseAmount(n.Amount),
	}
	if event.Outcome == OutcomeFailed {
		event.FailureReason = "payment " + strings.ToLower(n.PaymentStatus)
	}
	return event, nil
}

// Refund is not offered by the PAYable IPG API; refunds go through the merchant portal
func (p *PAYableProvider) Refund(ctx context.Context, payment *models.Payment, amount float64) error {
	return models.NewDomainError(models.KindInvalidState, "PAYable refunds must be issued from the merchant portal")
}

// IsConfigured returns true if merchant credentials are present
func (p *PAYableProvider) IsConfigured() bool {
	return p.config.MerchantKey != "" && p.config.MerchantToken != ""
}

func (p *PAYableProvider) post(ctx context.Context, endpoint string, in, out interface{}) error {
	jsonBody, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithError(err).WithField("endpoint", endpoint).Error("Failed to call PAYable endpoint")
		return providerError(p.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providerError(p.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"endpoint":    endpoint,
		}).Warn("PAYable returned non-200")
		return providerError(p.Name(), fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return providerError(p.Name(), fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func payableOutcome(status string) Outcome {
	switch strings.ToUpper(status) {
	case "SUCCESS":
		return OutcomePaid
	case "FAILED", "CANCELLED":
		return OutcomeFailed
	}
	return OutcomePending
}

func parseAmount(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// splitName splits a full name; PAYable requires a non-empty last name
func splitName(fullName string) (firstName, lastName string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "Customer", "."
	case 1:
		return parts[0], "."
	}
	return parts[0], strings.Join(parts[1:], " ")
}
