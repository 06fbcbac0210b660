package services

import (
	"context"

	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/internal/utils"
	"github.com/sirupsen/logrus"
)

// PaymentAuditService writes the append-only trail of payment ingress events
type PaymentAuditService struct {
	store  AuditStore
	logger *logrus.Logger
}

// NewPaymentAuditService creates a new payment audit service
func NewPaymentAuditService(store AuditStore, logger *logrus.Logger) *PaymentAuditService {
	return &PaymentAuditService{store: store, logger: logger}
}

// Record stores an audit entry with the request's client metadata.
// A failed audit write never fails the payment operation that produced it.
func (s *PaymentAuditService) Record(ctx context.Context, entry *models.PaymentAudit, meta models.RequestMeta) {
	entry.SetMetadata(meta.IPAddress, meta.UserAgent)
	if meta.UserAgent != "" {
		entry.DeviceInfo = models.JSONB(utils.ParseUserAgent(meta.UserAgent).ToMap())
	}

	if err := s.store.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":   entry.EventType,
			"event_source": entry.EventSource,
		}).Warn("Payment audit entry was not written")
	}
}

// Trail returns every audit entry for a payment, oldest first
func (s *PaymentAuditService) Trail(ctx context.Context, reference string) ([]models.PaymentAudit, error) {
	return s.store.GetByReference(ctx, reference)
}
