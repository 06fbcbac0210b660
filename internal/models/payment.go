package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the provider-facing status of a payment record
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition except a refund is possible
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// CanTransition reports whether from → to is a legal payment transition
func CanTransition(from, to PaymentStatus) bool {
	switch from {
	case PaymentStatusPending:
		return to == PaymentStatusSuccess || to == PaymentStatusFailed || to == PaymentStatusCancelled
	case PaymentStatusSuccess:
		return to == PaymentStatusRefunded
	}
	return false
}

// PaymentMethod selects the provider that handles a payment
type PaymentMethod string

const (
	PaymentMethodStripe  PaymentMethod = "STRIPE"
	PaymentMethodPAYable PaymentMethod = "PAYABLE"
	PaymentMethodCash    PaymentMethod = "CASH"
)

// Valid reports whether the method is known
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodPAYable, PaymentMethodCash:
		return true
	}
	return false
}

// Payment records the money side of a booking. There is at most one per booking.
type Payment struct {
	ID                   uuid.UUID     `json:"id" db:"id"`
	BookingID            uuid.UUID     `json:"booking_id" db:"booking_id"`
	Amount               float64       `json:"amount" db:"amount"`
	Currency             string        `json:"currency" db:"currency"`
	PaymentMethod        PaymentMethod `json:"payment_method" db:"payment_method"`
	PaymentProvider      string        `json:"payment_provider" db:"payment_provider"`
	Status               PaymentStatus `json:"status" db:"status"`
	TransactionReference string        `json:"transaction_reference" db:"transaction_reference"`
	ProviderSessionID    *string       `json:"provider_session_id,omitempty" db:"provider_session_id"`
	PaymentURL           *string       `json:"payment_url,omitempty" db:"payment_url"`
	CallbackData         *string       `json:"-" db:"callback_data"`
	FailureReason        *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	RefundedAmount       *float64      `json:"refunded_amount,omitempty" db:"refunded_amount"`
	CustomerName         string        `json:"customer_name" db:"customer_name"`
	CustomerEmail        string        `json:"customer_email" db:"customer_email"`
	Description          string        `json:"description" db:"description"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

// InitiatePaymentRequest represents the request to start paying for a booking
type InitiatePaymentRequest struct {
	BookingID     uuid.UUID     `json:"booking_id" binding:"required"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	PaymentMethod PaymentMethod `json:"payment_method" binding:"required"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email"`
	Description   string        `json:"description"`
}

// InitiatePaymentResponse is returned by payment initiation
type InitiatePaymentResponse struct {
	TransactionReference string        `json:"transaction_reference"`
	Status               PaymentStatus `json:"status"`
	Amount               float64       `json:"amount"`
	Currency             string        `json:"currency"`
	PaymentMethod        PaymentMethod `json:"payment_method"`
	PaymentURL           *string       `json:"payment_url,omitempty"`
	RequiresRedirect     bool          `json:"requires_redirect"`
}

// PaymentStatusView is the read-only status returned to polling clients
type PaymentStatusView struct {
	TransactionReference string        `json:"transaction_reference"`
	BookingID            uuid.UUID     `json:"booking_id"`
	Status               PaymentStatus `json:"status"`
	Amount               float64       `json:"amount"`
	Currency             string        `json:"currency"`
	PaymentMethod        PaymentMethod `json:"payment_method"`
	FailureReason        *string       `json:"failure_reason,omitempty"`
	IsCompleted          bool          `json:"is_completed"`
	IsSuccessful         bool          `json:"is_successful"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// NewPaymentStatusView builds the polling view of a payment
func NewPaymentStatusView(p *Payment) *PaymentStatusView {
	return &PaymentStatusView{
		TransactionReference: p.TransactionReference,
		BookingID:            p.BookingID,
		Status:               p.Status,
		Amount:               p.Amount,
		Currency:             p.Currency,
		PaymentMethod:        p.PaymentMethod,
		FailureReason:        p.FailureReason,
		IsCompleted:          p.Status.IsTerminal(),
		IsSuccessful:         p.Status == PaymentStatusSuccess,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// TransitionResult describes what an ingress event did to a payment
type TransitionResult struct {
	TransactionReference string        `json:"transaction_reference"`
	PreviousStatus       PaymentStatus `json:"previous_status"`
	Status               PaymentStatus `json:"status"`
	Applied              bool          `json:"applied"`
	Duplicate            bool          `json:"duplicate"`
}

// RefundRequest represents an administrative refund
type RefundRequest struct {
	Amount float64 `json:"amount" binding:"required"`
	Reason string  `json:"reason"`
}
