package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends an audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audit_logs (
			id, transaction_reference, booking_id, event_type, event_source, provider,
			status_before, status_after, applied,
			expected_amount, received_amount, amounts_match,
			raw_body, error_message, ip_address, user_agent, device_info, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16, $17, $18
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.TransactionReference, audit.BookingID, audit.EventType, audit.EventSource, audit.Provider,
		audit.StatusBefore, audit.StatusAfter, audit.Applied,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.AmountsMatch,
		audit.RawBody, audit.ErrorMessage, audit.IPAddress, audit.UserAgent, audit.DeviceInfo, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":            audit.EventType,
			"transaction_reference": audit.TransactionReference,
		}).Error("Failed to write payment audit entry")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	return nil
}

// GetByReference retrieves all audit entries for a payment, oldest first
func (r *PaymentAuditRepository) GetByReference(ctx context.Context, reference string) ([]models.PaymentAudit, error) {
	audits := []models.PaymentAudit{}
	query := `
		SELECT id, transaction_reference, booking_id, event_type, event_source, provider,
			status_before, status_after, applied, expected_amount, received_amount, amounts_match,
			raw_body, error_message, ip_address, user_agent, device_info, created_at
		FROM payment_audit_logs
		WHERE transaction_reference = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, reference); err != nil {
		return nil, fmt.Errorf("failed to get audits by reference: %w", err)
	}
	return audits, nil
}
