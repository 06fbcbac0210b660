package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/inzira/ticketing-core/internal/config"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/sirupsen/logrus"
)

// StripeSignatureTolerance is how old a signed webhook may be
const StripeSignatureTolerance = 5 * time.Minute

// zero-decimal currencies are sent to Stripe in whole units
var stripeZeroDecimal = map[string]bool{"RWF": true, "JPY": true, "KRW": true, "UGX": true, "XAF": true, "XOF": true}

// StripeProvider integrates Stripe Checkout over its REST API
type StripeProvider struct {
	config *config.StripeConfig
	logger *logrus.Logger
	client *http.Client
	now    func() time.Time
}

// NewStripeProvider creates a new Stripe provider
func NewStripeProvider(cfg *config.StripeConfig, logger *logrus.Logger) *StripeProvider {
	return &StripeProvider{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) Method() models.PaymentMethod { return models.PaymentMethodStripe }

func (p *StripeProvider) RequiresRedirect() bool { return true }

// IsConfigured returns true if the API secret key is present
func (p *StripeProvider) IsConfigured() bool {
	return p.config.SecretKey != ""
}

// stripeSession is the subset of a Checkout Session we read
type stripeSession struct {
	ID                string          `json:"id"`
	URL               string          `json:"url"`
	ClientReferenceID string          `json:"client_reference_id"`
	PaymentStatus     string          `json:"payment_status"` // paid, unpaid, no_payment_required
	Status            string          `json:"status"`         // open, complete, expired
	AmountTotal       *int64          `json:"amount_total"`
	Currency          string          `json:"currency"`
	PaymentIntent     json.RawMessage `json:"payment_intent"`
}

// paymentIntentStatus handles payment_intent being either an id or an expanded object
func (s *stripeSession) paymentIntentStatus() (id, status string) {
	if len(s.PaymentIntent) == 0 || string(s.PaymentIntent) == "null" {
		return "", ""
	}
	var pi struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(s.PaymentIntent, &pi); err == nil {
		return pi.ID, pi.Status
	}
	_ = json.Unmarshal(s.PaymentIntent, &id)
	return id, ""
}

type stripeError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CreateCheckout creates a hosted Checkout Session
func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if !p.IsConfigured() {
		return nil, providerError(p.Name(), fmt.Errorf("stripe secret key not configured"))
	}

	successURL := p.config.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}&ref=" + url.QueryEscape(req.TransactionReference)

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.TransactionReference)
	form.Set("success_url", successURL)
	form.Set("cancel_url", p.config.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(toMinorUnits(req.Amount, req.Currency), 10))
	form.Set("line_items[0][price_data][product_data][name]", "Bus ticket "+req.BookingReference)
	form.Set("metadata[transaction_reference]", req.TransactionReference)
	form.Set("metadata[booking_reference]", req.BookingReference)
	// carried onto the payment intent and its charges for failure/refund events
	form.Set("payment_intent_data[metadata][transaction_reference]", req.TransactionReference)
	if req.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", req.Description)
	}
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	var session stripeSession
	if err := p.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"transaction_reference": req.TransactionReference,
		"session_id":            session.ID,
	}).Info("Stripe checkout session created")

	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

// Lookup retrieves a Checkout Session with its payment intent expanded
func (p *StripeProvider) Lookup(ctx context.Context, sessionID string) (*Lookup, error) {
	if sessionID == "" {
		return nil, models.NewDomainError(models.KindInvalidPayload, "session id is required")
	}

	var session stripeSession
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID) + "?expand[]=payment_intent"
	if err := p.do(ctx, http.MethodGet, path, nil, &session); err != nil {
		return nil, err
	}

	_, piStatus := session.paymentIntentStatus()
	outcome := OutcomePending
	switch {
	case session.PaymentStatus == "paid" || piStatus == "succeeded":
		outcome = OutcomePaid
	case session.Status == "expired" || piStatus == "canceled":
		outcome = OutcomeFailed
	}

	return &Lookup{
		SessionID:            session.ID,
		TransactionReference: session.ClientReferenceID,
		Outcome:              outcome,
		ProviderStatus:       session.PaymentStatus,
		Amount:               fromMinorUnits(session.AmountTotal, session.Currency),
	}, nil
}

// stripeEvent is the envelope of a webhook delivery
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseWebhook verifies the Stripe-Signature header and maps the event
func (p *StripeProvider) ParseWebhook(body []byte, signatureHeader string) (*Event, error) {
	if err := VerifyStripeSignature(body, signatureHeader, p.config.WebhookSecret, p.now(), StripeSignatureTolerance); err != nil {
		return nil, err
	}

	var evt stripeEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, models.WrapDomainError(models.KindInvalidPayload, err, "malformed stripe event")
	}

	event := &Event{ID: evt.ID, Type: evt.Type, Outcome: OutcomeIgnored}

	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var session stripeSession
		if err := json.Unmarshal(evt.Data.Object, &session); err != nil {
			return nil, models.WrapDomainError(models.KindInvalidPayload, err, "malformed checkout session")
		}
		event.SessionID = session.ID
		event.TransactionReference = session.ClientReferenceID
		event.Amount = fromMinorUnits(session.AmountTotal, session.Currency)

		switch evt.Type {
		case "checkout.session.completed":
			// delayed payment methods complete the session before the money moves
			if session.PaymentStatus == "paid" {
				event.Outcome = OutcomePaid
			} else {
				event.Outcome = OutcomePending
			}
		case "checkout.session.async_payment_succeeded":
			event.Outcome = OutcomePaid
		case "checkout.session.async_payment_failed":
			event.Outcome = OutcomeFailed
			event.FailureReason = "async payment failed"
		case "checkout.session.expired":
			event.Outcome = OutcomeFailed
			event.FailureReason = "checkout session expired"
		}

	case "payment_intent.payment_failed":
		var pi struct {
			Metadata         map[string]string `json:"metadata"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		}
		if err := json.Unmarshal(evt.Data.Object, &pi); err != nil {
			return nil, models.WrapDomainError(models.KindInvalidPayload, err, "malformed payment intent")
		}
		event.TransactionReference = pi.Metadata["transaction_reference"]
		event.Outcome = OutcomeFailed
		event.FailureReason = "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
			event.FailureReason = pi.LastPaymentError.Message
		}

	case "charge.refunded":
		var charge struct {
			Metadata       map[string]string `json:"metadata"`
			AmountRefunded *int64            `json:"amount_refunded"`
			Currency       string            `json:"currency"`
		}
		if err := json.Unmarshal(evt.Data.Object, &charge); err != nil {
			return nil, models.WrapDomainError(models.KindInvalidPayload, err, "malformed charge")
		}
		event.TransactionReference = charge.Metadata["transaction_reference"]
		event.Amount = fromMinorUnits(charge.AmountRefunded, charge.Currency)
		event.Outcome = OutcomeRefunded
	}

	return event, nil
}

// ParseCallback is not used by Stripe; return URLs go through manual confirm
func (p *StripeProvider) ParseCallback(body []byte) (*Event, error) {
	return nil, models.NewDomainError(models.KindInvalidPayload, "stripe does not accept unsigned callbacks")
}

// Refund refunds (part of) the payment intent behind a checkout session
func (p *StripeProvider) Refund(ctx context.Context, payment *models.Payment, amount float64) error {
	if payment.ProviderSessionID == nil {
		return models.NewDomainError(models.KindInvalidState, "payment %s has no stripe session", payment.TransactionReference)
	}

	var session stripeSession
	path := "/v1/checkout/sessions/" + url.PathEscape(*payment.ProviderSessionID)
	if err := p.do(ctx, http.MethodGet, path, nil, &session); err != nil {
		return err
	}
	piID, _ := session.paymentIntentStatus()
	if piID == "" {
		return models.NewDomainError(models.KindInvalidState, "payment %s has no payment intent", payment.TransactionReference)
	}

	form := url.Values{}
	form.Set("payment_intent", piID)
	form.Set("amount", strconv.FormatInt(toMinorUnits(amount, payment.Currency), 10))
	form.Set("metadata[transaction_reference]", payment.TransactionReference)

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/refunds", form, &refund); err != nil {
		return err
	}
	if refund.Status == "failed" || refund.Status == "canceled" {
		return providerError(p.Name(), fmt.Errorf("refund %s ended as %s", refund.ID, refund.Status))
	}
	return nil
}

func (p *StripeProvider) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.config.APIBaseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("failed to build stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return providerError(p.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return providerError(p.Name(), err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return providerError(p.Name(), fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		var se stripeError
		_ = json.Unmarshal(respBody, &se)
		p.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"error_type":  se.Error.Type,
			"message":     se.Error.Message,
			"path":        path,
		}).Warn("Stripe rejected request")
		if resp.StatusCode == http.StatusNotFound {
			return models.NewDomainError(models.KindNotFound, "stripe object not found")
		}
		return providerError(p.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, se.Error.Message))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return providerError(p.Name(), fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// VerifyStripeSignature checks a "t=<unix>,v1=<hex>" header against the body.
// Multiple v1 entries are allowed (secret rotation); any match passes.
func VerifyStripeSignature(body []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	if secret == "" {
		return models.NewDomainError(models.KindSignatureInvalid, "webhook secret not configured")
	}
	if header == "" {
		return models.NewDomainError(models.KindSignatureInvalid, "missing signature header")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return models.NewDomainError(models.KindSignatureInvalid, "malformed signature header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return models.NewDomainError(models.KindSignatureInvalid, "malformed signature timestamp")
	}
	if age := now.Sub(time.Unix(ts, 0)); age > tolerance || age < -tolerance {
		return models.NewDomainError(models.KindSignatureInvalid, "signature timestamp outside tolerance")
	}

	expected := SignStripePayload(body, secret, ts)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return models.NewDomainError(models.KindSignatureInvalid, "no matching signature")
}

// SignStripePayload computes the v1 signature for a payload and timestamp
func SignStripePayload(body []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func toMinorUnits(amount float64, currency string) int64 {
	if stripeZeroDecimal[strings.ToUpper(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(amount *int64, currency string) *float64 {
	if amount == nil {
		return nil
	}
	v := float64(*amount)
	if !stripeZeroDecimal[strings.ToUpper(currency)] {
		v = v / 100
	}
	return &v
}
