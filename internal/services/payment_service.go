package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/database"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/internal/payments"
	"github.com/inzira/ticketing-core/pkg/events"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PaymentService is the reconciliation engine. Every ingress channel
// (webhook, manual confirm, callback, admin) funnels into apply, which moves a
// payment with a compare-and-set so the first terminal writer wins.
type PaymentService struct {
	tx         TxRunner
	payments   PaymentStore
	bookings   BookingStore
	bookingSvc *BookingService
	registry   *payments.Registry
	audit      *PaymentAuditService
	publisher  events.Publisher
	currency   string
	logger     *logrus.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	tx TxRunner,
	paymentStore PaymentStore,
	bookingStore BookingStore,
	bookingSvc *BookingService,
	registry *payments.Registry,
	audit *PaymentAuditService,
	publisher events.Publisher,
	currency string,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		tx:         tx,
		payments:   paymentStore,
		bookings:   bookingStore,
		bookingSvc: bookingSvc,
		registry:   registry,
		audit:      audit,
		publisher:  publisher,
		currency:   currency,
		logger:     logger,
	}
}

// ingress is one event that wants to move a payment to a new status
type ingress struct {
	source    models.PaymentEventSource
	provider  string
	reference string
	target    models.PaymentStatus
	amount    *float64 // amount the provider reports, checked on SUCCESS
	rawBody   string
	params    database.TransitionParams
	meta      models.RequestMeta
}

// Initiate creates the PENDING payment for a booking. Redirect providers get
// a checkout session after commit; cash settles inside the same transaction.
func (s *PaymentService) Initiate(ctx context.Context, req *models.InitiatePaymentRequest, meta models.RequestMeta) (*models.InitiatePaymentResponse, error) {
	provider, err := s.registry.Get(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	var booking *models.Booking
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		b, err := s.bookings.LockByID(ctx, tx, req.BookingID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingStatusPending || b.PaymentStatus != models.BookingPaymentPending {
			return models.NewDomainError(models.KindInvalidState, "booking %s is %s/%s, payment can only start on a pending booking", b.BookingReference, b.Status, b.PaymentStatus)
		}

		exists, err := s.payments.ExistsForBooking(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if exists {
			return models.NewDomainError(models.KindInvalidState, "booking %s already has a payment", b.BookingReference)
		}

		amount := b.TotalAmount
		if req.Amount != 0 && !amountsMatch(req.Amount, b.TotalAmount) {
			return models.NewDomainError(models.KindInvalidPayload, "amount %.2f does not match booking total %.2f", req.Amount, b.TotalAmount)
		}

		reference, err := database.GenerateTransactionReference()
		if err != nil {
			return err
		}

		p := &models.Payment{
			ID:                   uuid.New(),
			BookingID:            b.ID,
			Amount:               amount,
			Currency:             strings.ToUpper(firstNonEmpty(req.Currency, s.currency)),
			PaymentMethod:        req.PaymentMethod,
			PaymentProvider:      provider.Name(),
			Status:               models.PaymentStatusPending,
			TransactionReference: reference,
			CustomerName:         firstNonEmpty(req.CustomerName, b.PassengerName),
			CustomerEmail:        firstNonEmpty(req.CustomerEmail, b.PassengerEmail),
			Description:          firstNonEmpty(req.Description, "Bus ticket "+b.BookingReference),
		}
		if err := s.payments.Create(ctx, tx, p); err != nil {
			return err
		}

		if !provider.RequiresRedirect() {
			ok, err := s.payments.Transition(ctx, tx, reference, models.PaymentStatusPending, models.PaymentStatusSuccess, database.TransitionParams{})
			if err != nil {
				return err
			}
			if !ok {
				return models.NewDomainError(models.KindInvalidState, "payment %s changed while settling", reference)
			}
			if err := s.bookingSvc.MarkPaid(ctx, tx, b.ID); err != nil {
				return err
			}
			p.Status = models.PaymentStatusSuccess
		}

		payment = p
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		SetReference(payment.TransactionReference).
		SetBooking(payment.BookingID).
		SetProvider(provider.Name())

	resp := &models.InitiatePaymentResponse{
		TransactionReference: payment.TransactionReference,
		Status:               payment.Status,
		Amount:               payment.Amount,
		Currency:             payment.Currency,
		PaymentMethod:        payment.PaymentMethod,
		RequiresRedirect:     provider.RequiresRedirect(),
	}

	if !provider.RequiresRedirect() {
		entry.SetTransition(models.PaymentStatusPending, models.PaymentStatusSuccess, true)
		s.audit.Record(ctx, entry, meta)
		s.logger.WithFields(logrus.Fields{
			"transaction_reference": payment.TransactionReference,
			"booking_reference":     booking.BookingReference,
			"method":                payment.PaymentMethod,
		}).Info("Payment settled on the spot")
		s.publish(ctx, events.PaymentSucceeded, payment)
		s.bookingSvc.AfterPaid(ctx, payment.BookingID)
		return resp, nil
	}

	session, err := provider.CreateCheckout(ctx, payments.CheckoutRequest{
		TransactionReference: payment.TransactionReference,
		BookingReference:     booking.BookingReference,
		Amount:               payment.Amount,
		Currency:             payment.Currency,
		CustomerName:         payment.CustomerName,
		CustomerEmail:        payment.CustomerEmail,
		CustomerPhone:        booking.PassengerPhone,
		Description:          payment.Description,
	})
	if err != nil {
		if ferr := s.payments.SetFailureReason(ctx, payment.TransactionReference, err.Error()); ferr != nil {
			s.logger.WithError(ferr).WithField("transaction_reference", payment.TransactionReference).Warn("Failed to record checkout failure")
		}
		failed := models.NewPaymentAudit(models.PaymentEventInitiationFailed, models.PaymentSourceBackend).
			SetReference(payment.TransactionReference).
			SetBooking(payment.BookingID).
			SetProvider(provider.Name()).
			SetError(err.Error())
		s.audit.Record(ctx, failed, meta)

		s.logger.WithError(err).WithFields(logrus.Fields{
			"transaction_reference": payment.TransactionReference,
			"provider":              provider.Name(),
		}).Error("Checkout session could not be created")

		if _, ok := models.AsDomainError(err); ok {
			return nil, err
		}
		return nil, models.WrapDomainError(models.KindProviderError, err, "%s checkout failed", provider.Name())
	}

	if err := s.payments.SetCheckout(ctx, payment.TransactionReference, session.URL, session.SessionID); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, entry, meta)

	s.logger.WithFields(logrus.Fields{
		"transaction_reference": payment.TransactionReference,
		"booking_reference":     booking.BookingReference,
		"provider":              provider.Name(),
		"amount":                payment.Amount,
	}).Info("Payment initiated")

	url := session.URL
	resp.PaymentURL = &url
	return resp, nil
}

// HandleWebhook verifies and applies a signed provider push
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, body []byte, signature string, meta models.RequestMeta) (*models.TransitionResult, error) {
	provider, err := s.registry.ByName(providerName)
	if err != nil {
		return nil, err
	}

	event, err := provider.ParseWebhook(body, signature)
	if err != nil {
		s.reject(ctx, models.PaymentSourceWebhook, providerName, "", string(body), err, meta)
		return nil, err
	}

	reference := event.TransactionReference
	if reference == "" && event.SessionID != "" {
		if p, err := s.payments.GetByProviderSession(ctx, event.SessionID); err == nil {
			reference = p.TransactionReference
		}
	}

	target, ok := event.Outcome.TargetStatus()
	if !ok || reference == "" {
		entry := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceWebhook).
			SetReference(reference).
			SetProvider(providerName).
			SetRawBody(string(body))
		s.audit.Record(ctx, entry, meta)

		s.logger.WithFields(logrus.Fields{
			"provider":   providerName,
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Debug("Webhook event does not change payment state")
		return &models.TransitionResult{TransactionReference: reference}, nil
	}

	return s.apply(ctx, ingress{
		source:    models.PaymentSourceWebhook,
		provider:  providerName,
		reference: reference,
		target:    target,
		amount:    event.Amount,
		rawBody:   string(body),
		params:    transitionParams(string(body), event.FailureReason),
		meta:      meta,
	})
}

// ConfirmWithProvider settles a payment on the client's word only after the
// provider itself reports the session paid. The lookup runs before any lock.
func (s *PaymentService) ConfirmWithProvider(ctx context.Context, providerName, sessionID, reference string, meta models.RequestMeta) (*models.TransitionResult, error) {
	if sessionID == "" || reference == "" {
		return nil, models.NewDomainError(models.KindInvalidPayload, "session id and reference are required")
	}

	provider, err := s.registry.ByName(providerName)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.GetByReference(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	if payment.ProviderSessionID != nil && *payment.ProviderSessionID != sessionID {
		err := models.NewDomainError(models.KindReferenceMismatch, "session %s does not belong to payment %s", sessionID, reference)
		s.reject(ctx, models.PaymentSourceManual, providerName, reference, "", err, meta)
		return nil, err
	}

	lookup, err := provider.Lookup(ctx, sessionID)
	if err != nil {
		s.reject(ctx, models.PaymentSourceManual, providerName, reference, "", err, meta)
		return nil, err
	}
	if lookup.TransactionReference != "" && lookup.TransactionReference != reference {
		err := models.NewDomainError(models.KindReferenceMismatch, "provider session belongs to %s, not %s", lookup.TransactionReference, reference)
		s.reject(ctx, models.PaymentSourceManual, providerName, reference, "", err, meta)
		return nil, err
	}
	if lookup.Outcome != payments.OutcomePaid {
		err := models.NewDomainError(models.KindInvalidState, "payment not completed (provider status %s)", lookup.ProviderStatus)
		entry := models.NewPaymentAudit(models.PaymentEventManualConfirm, models.PaymentSourceManual).
			SetReference(reference).
			SetBooking(payment.BookingID).
			SetProvider(providerName).
			SetError(err.Error())
		s.audit.Record(ctx, entry, meta)
		return nil, err
	}

	raw, _ := json.Marshal(lookup)
	return s.apply(ctx, ingress{
		source:    models.PaymentSourceManual,
		provider:  providerName,
		reference: reference,
		target:    models.PaymentStatusSuccess,
		amount:    lookup.Amount,
		rawBody:   string(raw),
		params:    transitionParams(string(raw), ""),
		meta:      meta,
	})
}

// CheckStatus returns the current status of a payment without side effects
func (s *PaymentService) CheckStatus(ctx context.Context, reference string) (*models.PaymentStatusView, error) {
	payment, err := s.payments.GetByReference(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	return models.NewPaymentStatusView(payment), nil
}

// HandleCallback applies an unsigned provider notification. The payload is
// audited as received; where the provider can be queried its answer wins over
// the payload's.
func (s *PaymentService) HandleCallback(ctx context.Context, providerName, reference string, body []byte, meta models.RequestMeta) (*models.TransitionResult, error) {
	provider, err := s.registry.ByName(providerName)
	if err != nil {
		return nil, err
	}

	event, err := provider.ParseCallback(body)
	if err != nil {
		s.reject(ctx, models.PaymentSourceCallback, providerName, reference, string(body), err, meta)
		return nil, err
	}

	if reference == "" {
		reference = event.TransactionReference
	}
	if event.TransactionReference != "" && event.TransactionReference != reference {
		err := models.NewDomainError(models.KindReferenceMismatch, "callback is for %s, not %s", event.TransactionReference, reference)
		s.reject(ctx, models.PaymentSourceCallback, providerName, reference, string(body), err, meta)
		return nil, err
	}

	payment, err := s.payments.GetByReference(ctx, nil, reference)
	if err != nil {
		s.reject(ctx, models.PaymentSourceCallback, providerName, reference, string(body), err, meta)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"provider":              providerName,
		"transaction_reference": reference,
		"outcome":               event.Outcome,
	}).Info("Payment callback received")

	outcome, amount := event.Outcome, event.Amount
	sessionID := event.SessionID
	if sessionID == "" && payment.ProviderSessionID != nil {
		sessionID = *payment.ProviderSessionID
	}
	if sessionID != "" {
		lookup, err := provider.Lookup(ctx, sessionID)
		switch {
		case errors.Is(err, models.ErrInvalidState):
			// provider has no status endpoint; the payload stands
		case err != nil:
			s.reject(ctx, models.PaymentSourceCallback, providerName, reference, string(body), err, meta)
			return nil, err
		default:
			if lookup.TransactionReference != "" && lookup.TransactionReference != reference {
				err := models.NewDomainError(models.KindReferenceMismatch, "provider session belongs to %s, not %s", lookup.TransactionReference, reference)
				s.reject(ctx, models.PaymentSourceCallback, providerName, reference, string(body), err, meta)
				return nil, err
			}
			outcome, amount = lookup.Outcome, lookup.Amount
		}
	}

	target, ok := outcome.TargetStatus()
	if !ok {
		entry := models.NewPaymentAudit(models.PaymentEventCallbackReceived, models.PaymentSourceCallback).
			SetReference(reference).
			SetBooking(payment.BookingID).
			SetProvider(providerName).
			SetRawBody(string(body))
		s.audit.Record(ctx, entry, meta)
		return &models.TransitionResult{
			TransactionReference: reference,
			PreviousStatus:       payment.Status,
			Status:               payment.Status,
		}, nil
	}

	return s.apply(ctx, ingress{
		source:    models.PaymentSourceCallback,
		provider:  providerName,
		reference: reference,
		target:    target,
		amount:    amount,
		rawBody:   string(body),
		params:    transitionParams(string(body), event.FailureReason),
		meta:      meta,
	})
}

// Refund returns money for a successful payment. The provider is asked first;
// the local status only moves once it has agreed. The booking stays confirmed.
func (s *PaymentService) Refund(ctx context.Context, reference string, req *models.RefundRequest, meta models.RequestMeta) (*models.TransitionResult, error) {
	payment, err := s.payments.GetByReference(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusSuccess {
		return nil, models.NewDomainError(models.KindInvalidState, "payment %s is %s, only successful payments can be refunded", reference, payment.Status)
	}
	if req.Amount <= 0 || req.Amount > payment.Amount+0.005 {
		return nil, models.NewDomainError(models.KindInvalidPayload, "refund amount must be between 0 and %.2f", payment.Amount)
	}

	provider, err := s.registry.Get(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := provider.Refund(ctx, payment, req.Amount); err != nil {
		s.reject(ctx, models.PaymentSourceAdmin, provider.Name(), reference, "", err, meta)
		return nil, err
	}

	amount := math.Round(req.Amount*100) / 100
	params := database.TransitionParams{RefundedAmount: &amount}
	if req.Reason != "" {
		reason := "refund: " + req.Reason
		params.FailureReason = &reason
	}
	return s.apply(ctx, ingress{
		source:    models.PaymentSourceAdmin,
		provider:  provider.Name(),
		reference: reference,
		target:    models.PaymentStatusRefunded,
		params:    params,
		meta:      meta,
	})
}

// Cancel abandons a payment that has not completed
func (s *PaymentService) Cancel(ctx context.Context, reference string, meta models.RequestMeta) (*models.TransitionResult, error) {
	payment, err := s.payments.GetByReference(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, models.NewDomainError(models.KindInvalidState, "payment %s is %s, only pending payments can be cancelled", reference, payment.Status)
	}

	reason := "cancelled by user"
	return s.apply(ctx, ingress{
		source:    models.PaymentSourceBackend,
		provider:  payment.PaymentProvider,
		reference: reference,
		target:    models.PaymentStatusCancelled,
		params:    database.TransitionParams{FailureReason: &reason},
		meta:      meta,
	})
}

// AuditTrail returns the recorded ingress events of a payment
func (s *PaymentService) AuditTrail(ctx context.Context, reference string) ([]models.PaymentAudit, error) {
	if _, err := s.payments.GetByReference(ctx, nil, reference); err != nil {
		return nil, err
	}
	return s.audit.Trail(ctx, reference)
}

// apply runs the shared transition. The booking row is locked before the
// payment is re-read so this never deadlocks against booking cancellation.
func (s *PaymentService) apply(ctx context.Context, in ingress) (*models.TransitionResult, error) {
	var result models.TransitionResult
	var payment *models.Payment
	var mismatch bool

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = models.TransitionResult{TransactionReference: in.reference, Status: in.target}
		mismatch = false

		p, err := s.payments.GetByReference(ctx, tx, in.reference)
		if err != nil {
			return err
		}
		if _, err := s.bookings.LockByID(ctx, tx, p.BookingID); err != nil {
			return err
		}
		if p, err = s.payments.GetByReference(ctx, tx, in.reference); err != nil {
			return err
		}
		payment = p
		result.PreviousStatus = p.Status

		if p.Status == in.target {
			result.Duplicate = true
			return nil
		}
		if !models.CanTransition(p.Status, in.target) {
			mismatch = p.Status.IsTerminal()
			return models.NewDomainError(models.KindInvalidState, "payment %s is %s, cannot move to %s", in.reference, p.Status, in.target)
		}
		if in.target == models.PaymentStatusSuccess && in.amount != nil && !amountsMatch(*in.amount, p.Amount) {
			mismatch = true
			return models.NewDomainError(models.KindInvalidPayload, "provider amount %.2f does not match payment amount %.2f", *in.amount, p.Amount)
		}

		ok, err := s.payments.Transition(ctx, tx, in.reference, p.Status, in.target, in.params)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewDomainError(models.KindInvalidState, "payment %s changed concurrently", in.reference)
		}

		switch in.target {
		case models.PaymentStatusSuccess:
			if err := s.bookingSvc.MarkPaid(ctx, tx, p.BookingID); err != nil {
				mismatch = true
				return err
			}
		case models.PaymentStatusRefunded:
			if err := s.bookingSvc.MarkRefunded(ctx, tx, p.BookingID); err != nil {
				return err
			}
		}

		result.Applied = true
		return nil
	})

	s.recordOutcome(ctx, in, payment, &result, err, mismatch)

	fields := logrus.Fields{
		"transaction_reference": in.reference,
		"source":                in.source,
		"target_status":         in.target,
	}
	if err != nil {
		if mismatch {
			s.logger.WithError(err).WithFields(fields).WithField("current_status", result.PreviousStatus).
				Warn("Payment event contradicts recorded state, rejected")
		}
		return nil, err
	}

	if result.Duplicate {
		s.logger.WithFields(fields).Debug("Duplicate payment event ignored")
		return &result, nil
	}

	s.logger.WithFields(fields).WithField("previous_status", result.PreviousStatus).Info("Payment status updated")

	payment.Status = in.target
	switch in.target {
	case models.PaymentStatusSuccess:
		s.publish(ctx, events.PaymentSucceeded, payment)
		s.bookingSvc.AfterPaid(ctx, payment.BookingID)
	case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		s.publish(ctx, events.PaymentFailed, payment)
	case models.PaymentStatusRefunded:
		s.publish(ctx, events.PaymentRefunded, payment)
	}
	return &result, nil
}

// recordOutcome writes the audit entry describing what apply did
func (s *PaymentService) recordOutcome(ctx context.Context, in ingress, payment *models.Payment, result *models.TransitionResult, err error, mismatch bool) {
	eventType := models.PaymentEventRejected
	switch {
	case err != nil && mismatch:
		eventType = models.PaymentEventReconciliationMismatch
	case err != nil:
	case result.Duplicate:
		eventType = models.PaymentEventDuplicate
	case in.target == models.PaymentStatusSuccess:
		eventType = models.PaymentEventSuccess
	case in.target == models.PaymentStatusFailed:
		eventType = models.PaymentEventFailed
	case in.target == models.PaymentStatusCancelled:
		eventType = models.PaymentEventCancelled
	case in.target == models.PaymentStatusRefunded:
		eventType = models.PaymentEventRefundCompleted
	}

	entry := models.NewPaymentAudit(eventType, in.source).
		SetReference(in.reference).
		SetProvider(in.provider).
		SetRawBody(in.rawBody)
	if payment != nil {
		entry.SetBooking(payment.BookingID)
		entry.SetTransition(payment.Status, in.target, result.Applied)
		if in.amount != nil {
			entry.SetAmounts(payment.Amount, *in.amount)
		}
	}
	if err != nil {
		entry.SetError(err.Error())
	}
	s.audit.Record(ctx, entry, in.meta)
}

// reject audits an event that never reached the transition
func (s *PaymentService) reject(ctx context.Context, source models.PaymentEventSource, provider, reference, body string, err error, meta models.RequestMeta) {
	entry := models.NewPaymentAudit(models.PaymentEventRejected, source).
		SetReference(reference).
		SetProvider(provider).
		SetRawBody(body).
		SetError(err.Error())
	s.audit.Record(ctx, entry, meta)

	s.logger.WithError(err).WithFields(logrus.Fields{
		"source":                source,
		"provider":              provider,
		"transaction_reference": reference,
	}).Warn("Payment event rejected")
}

func (s *PaymentService) publish(ctx context.Context, eventType string, p *models.Payment) {
	publishEvent(ctx, s.publisher, s.logger, events.New(eventType, p.TransactionReference, map[string]interface{}{
		"payment_id":     p.ID,
		"booking_id":     p.BookingID,
		"amount":         p.Amount,
		"currency":       p.Currency,
		"payment_method": p.PaymentMethod,
		"status":         p.Status,
	}))
}

func transitionParams(raw, failureReason string) database.TransitionParams {
	var params database.TransitionParams
	if raw != "" {
		params.CallbackData = &raw
	}
	if failureReason != "" {
		params.FailureReason = &failureReason
	}
	return params
}

func amountsMatch(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
