package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
)

const paymentColumns = `
	id, booking_id, amount, currency, payment_method, payment_provider, status,
	transaction_reference, provider_session_id, payment_url, callback_data, failure_reason,
	refunded_amount, customer_name, customer_email, description, created_at, updated_at`

// PaymentRepository handles database operations for payments
type PaymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// GenerateTransactionReference returns a reference of the form TXN-<unix millis>-<8 hex>
func GenerateTransactionReference() (string, error) {
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return fmt.Sprintf("TXN-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(randomBytes)), nil
}

// Create inserts a payment. ID and reference must already be set.
func (r *PaymentRepository) Create(ctx context.Context, q Queryer, p *models.Payment) error {
	query := `
		INSERT INTO payments (
			id, booking_id, amount, currency, payment_method, payment_provider, status,
			transaction_reference, customer_name, customer_email, description
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		) RETURNING created_at, updated_at`

	err := q.QueryRowxContext(ctx, query,
		p.ID, p.BookingID, p.Amount, p.Currency, p.PaymentMethod, p.PaymentProvider, p.Status,
		p.TransactionReference, p.CustomerName, p.CustomerEmail, p.Description,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByReference retrieves a payment by transaction reference.
// q may be nil to read outside a transaction.
func (r *PaymentRepository) GetByReference(ctx context.Context, q Queryer, reference string) (*models.Payment, error) {
	return r.get(ctx, q, `SELECT`+paymentColumns+` FROM payments WHERE transaction_reference = $1`, reference)
}

// GetByBookingID retrieves the payment attached to a booking
func (r *PaymentRepository) GetByBookingID(ctx context.Context, q Queryer, bookingID uuid.UUID) (*models.Payment, error) {
	return r.get(ctx, q, `SELECT`+paymentColumns+` FROM payments WHERE booking_id = $1`, bookingID)
}

// GetByProviderSession retrieves a payment by the provider's checkout session id
func (r *PaymentRepository) GetByProviderSession(ctx context.Context, sessionID string) (*models.Payment, error) {
	return r.get(ctx, r.db, `SELECT`+paymentColumns+` FROM payments WHERE provider_session_id = $1`, sessionID)
}

func (r *PaymentRepository) get(ctx context.Context, q Queryer, query string, arg interface{}) (*models.Payment, error) {
	if q == nil {
		q = r.db
	}
	payment := &models.Payment{}
	err := q.GetContext(ctx, payment, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.KindNotFound, "payment %v not found", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// ExistsForBooking reports whether a booking already has a payment
func (r *PaymentRepository) ExistsForBooking(ctx context.Context, q Queryer, bookingID uuid.UUID) (bool, error) {
	var count int
	if err := q.GetContext(ctx, &count, `SELECT COUNT(*) FROM payments WHERE booking_id = $1`, bookingID); err != nil {
		return false, fmt.Errorf("failed to check existing payment: %w", err)
	}
	return count > 0, nil
}

// TransitionParams carries the optional columns written with a status change
type TransitionParams struct {
	CallbackData   *string
	FailureReason  *string
	RefundedAmount *float64
}

// Transition is a compare-and-set on payment status: the row only changes if
// it is still in `from`. Returns false when another writer got there first.
func (r *PaymentRepository) Transition(ctx context.Context, q Queryer, reference string, from, to models.PaymentStatus, params TransitionParams) (bool, error) {
	query := `
		UPDATE payments
		SET status = $3,
			callback_data = COALESCE($4, callback_data),
			failure_reason = COALESCE($5, failure_reason),
			refunded_amount = COALESCE($6, refunded_amount),
			updated_at = NOW()
		WHERE transaction_reference = $1 AND status = $2`

	result, err := q.ExecContext(ctx, query, reference, from, to, params.CallbackData, params.FailureReason, params.RefundedAmount)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// SetCheckout stores the provider checkout URL and session id of a pending payment
func (r *PaymentRepository) SetCheckout(ctx context.Context, reference, paymentURL, sessionID string) error {
	query := `
		UPDATE payments SET payment_url = $2, provider_session_id = $3, updated_at = NOW()
		WHERE transaction_reference = $1 AND status = 'PENDING'`
	if _, err := r.db.ExecContext(ctx, query, reference, paymentURL, sessionID); err != nil {
		return fmt.Errorf("failed to store checkout session: %w", err)
	}
	return nil
}

// SetFailureReason records why a provider call failed without changing status
func (r *PaymentRepository) SetFailureReason(ctx context.Context, reference, reason string) error {
	query := `UPDATE payments SET failure_reason = $2, updated_at = NOW() WHERE transaction_reference = $1`
	if _, err := r.db.ExecContext(ctx, query, reference, reason); err != nil {
		return fmt.Errorf("failed to set failure reason: %w", err)
	}
	return nil
}

// DeletePendingForBooking removes a still-pending payment of a booking
func (r *PaymentRepository) DeletePendingForBooking(ctx context.Context, q Queryer, bookingID uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM payments WHERE booking_id = $1 AND status = 'PENDING'`, bookingID); err != nil {
		return fmt.Errorf("failed to delete pending payment: %w", err)
	}
	return nil
}
