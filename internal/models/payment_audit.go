package models

import (
	"database/sql/driver"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated              PaymentEventType = "payment_initiated"
	PaymentEventInitiationFailed       PaymentEventType = "payment_initiation_failed"
	PaymentEventWebhookReceived        PaymentEventType = "webhook_received"
	PaymentEventManualConfirm          PaymentEventType = "manual_confirm"
	PaymentEventCallbackReceived       PaymentEventType = "callback_received"
	PaymentEventSuccess                PaymentEventType = "payment_success"
	PaymentEventFailed                 PaymentEventType = "payment_failed"
	PaymentEventCancelled              PaymentEventType = "payment_cancelled"
	PaymentEventRefundCompleted        PaymentEventType = "refund_completed"
	PaymentEventDuplicate              PaymentEventType = "duplicate_event"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
	PaymentEventRejected               PaymentEventType = "event_rejected"
)

// PaymentEventSource identifies the ingress channel an event arrived on
type PaymentEventSource string

const (
	PaymentSourceBackend  PaymentEventSource = "backend"
	PaymentSourceWebhook  PaymentEventSource = "webhook"
	PaymentSourceManual   PaymentEventSource = "manual_confirm"
	PaymentSourceCallback PaymentEventSource = "callback"
	PaymentSourceAdmin    PaymentEventSource = "admin"
)

// JSONB maps a Postgres jsonb column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// PaymentAudit is an append-only record of one ingress event for a payment
type PaymentAudit struct {
	ID                   uuid.UUID          `json:"id" db:"id"`
	TransactionReference *string            `json:"transaction_reference,omitempty" db:"transaction_reference"`
	BookingID            *uuid.UUID         `json:"booking_id,omitempty" db:"booking_id"`
	EventType            PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource          PaymentEventSource `json:"event_source" db:"event_source"`
	Provider             *string            `json:"provider,omitempty" db:"provider"`

	StatusBefore *PaymentStatus `json:"status_before,omitempty" db:"status_before"`
	StatusAfter  *PaymentStatus `json:"status_after,omitempty" db:"status_after"`
	Applied      bool           `json:"applied" db:"applied"`

	// Amount tracking
	ExpectedAmount *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	RawBody      *string `json:"raw_body,omitempty" db:"raw_body"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	IPAddress  *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo JSONB   `json:"device_info,omitempty" db:"device_info"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetReference sets the transaction reference
func (pa *PaymentAudit) SetReference(ref string) *PaymentAudit {
	if ref != "" {
		pa.TransactionReference = &ref
	}
	return pa
}

// SetBooking sets the booking id
func (pa *PaymentAudit) SetBooking(id uuid.UUID) *PaymentAudit {
	pa.BookingID = &id
	return pa
}

// SetProvider sets the provider name
func (pa *PaymentAudit) SetProvider(name string) *PaymentAudit {
	if name != "" {
		pa.Provider = &name
	}
	return pa
}

// SetTransition records the status change an event attempted
func (pa *PaymentAudit) SetTransition(before, after PaymentStatus, applied bool) *PaymentAudit {
	pa.StatusBefore = &before
	pa.StatusAfter = &after
	pa.Applied = applied
	return pa
}

// SetAmounts sets and verifies amounts - returns whether they match
func (pa *PaymentAudit) SetAmounts(expected, received float64) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received

	match := math.Abs(expected-received) < 0.01
	pa.AmountsMatch = &match
	return match
}

// SetRawBody stores the raw payload before parsing
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	if body != "" {
		pa.RawBody = &body
	}
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	return pa
}

// RequestMeta carries the caller details of an ingress request into the audit trail
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
