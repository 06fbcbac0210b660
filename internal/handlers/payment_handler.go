package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inzira/ticketing-core/internal/middleware"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// PaymentOperations is the payment reconciliation engine as seen by the HTTP layer
type PaymentOperations interface {
	Initiate(ctx context.Context, req *models.InitiatePaymentRequest, meta models.RequestMeta) (*models.InitiatePaymentResponse, error)
	HandleWebhook(ctx context.Context, providerName string, body []byte, signature string, meta models.RequestMeta) (*models.TransitionResult, error)
	ConfirmWithProvider(ctx context.Context, providerName, sessionID, reference string, meta models.RequestMeta) (*models.TransitionResult, error)
	CheckStatus(ctx context.Context, reference string) (*models.PaymentStatusView, error)
	HandleCallback(ctx context.Context, providerName, reference string, body []byte, meta models.RequestMeta) (*models.TransitionResult, error)
	Refund(ctx context.Context, reference string, req *models.RefundRequest, meta models.RequestMeta) (*models.TransitionResult, error)
	Cancel(ctx context.Context, reference string, meta models.RequestMeta) (*models.TransitionResult, error)
	AuditTrail(ctx context.Context, reference string) ([]models.PaymentAudit, error)
}

// maxProviderBody caps webhook and callback bodies
const maxProviderBody = 1 << 20

// PaymentHandler handles payment initiation and the provider ingress channels
type PaymentHandler struct {
	payments PaymentOperations
	bookings BookingOperations
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments PaymentOperations, bookings BookingOperations, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, bookings: bookings, logger: logger}
}

// InitiatePayment starts paying for a pending booking
// @Summary Initiate a payment
// @Description Creates a PENDING payment. Redirect methods return the provider checkout URL.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body models.InitiatePaymentRequest true "Payment request"
// @Success 201 {object} models.InitiatePaymentResponse
// @Failure 400 {object} map[string]interface{} "Booking not payable"
// @Failure 502 {object} map[string]interface{} "Provider unavailable, retryable"
// @Security BearerAuth
// @Router /api/v1/payments/initiate [post]
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	// cash is taken at the counter
	if req.PaymentMethod == models.PaymentMethodCash && !userCtx.HasRole(jwt.RoleAgent, jwt.RoleAdmin) {
		respondError(c, h.logger, models.NewDomainError(models.KindForbidden, "cash payments can only be recorded by agents"))
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), req.BookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !userCtx.HasRole(staffRoles...) && (booking.CustomerID == nil || *booking.CustomerID != userCtx.UserID) {
		respondError(c, h.logger, models.NewDomainError(models.KindForbidden, "booking belongs to another customer"))
		return
	}

	resp, err := h.payments.Initiate(c.Request.Context(), &req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetPaymentStatus returns the current status of a payment
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	view, err := h.payments.CheckStatus(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Webhook receives signed provider notifications.
// Events that lost the race against an earlier terminal status, or that name an
// unknown payment, are acknowledged so the provider stops redelivering them.
// @Summary Provider webhook
// @Tags Payments
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param Stripe-Signature header string true "Signature header"
// @Router /api/v1/payments/webhook/{provider} [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	provider := c.Param("provider")
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	result, err := h.payments.HandleWebhook(c.Request.Context(), provider, body, c.GetHeader("Stripe-Signature"), requestMeta(c))
	if err != nil {
		if errors.Is(err, models.ErrInvalidState) || errors.Is(err, models.ErrNotFound) {
			h.logger.WithError(err).WithField("provider", provider).Warn("Webhook acknowledged without applying")
			c.JSON(http.StatusOK, gin.H{"received": true, "applied": false})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"applied":   result.Applied,
		"duplicate": result.Duplicate,
		"status":    result.Status,
	})
}

// ConfirmPayment re-verifies a checkout with the provider after the customer
// returns from the hosted page
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	sessionID := c.Query("session_id")
	reference := c.Query("ref")
	if sessionID == "" || reference == "" {
		badRequest(c, "session_id and ref are required")
		return
	}

	result, err := h.payments.ConfirmWithProvider(c.Request.Context(), c.Param("provider"), sessionID, reference, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Callback receives unsigned provider notifications. The outcome is re-checked
// with the provider before it is applied.
func (h *PaymentHandler) Callback(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	result, err := h.payments.HandleCallback(c.Request.Context(), c.Param("provider"), c.Query("ref"), body, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RefundPayment refunds a successful payment (admin only)
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.payments.Refund(c.Request.Context(), c.Param("reference"), &req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelPayment abandons a pending payment
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	result, err := h.payments.Cancel(c.Request.Context(), c.Param("reference"), requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAuditTrail returns every recorded ingress event for a payment (admin only)
func (h *PaymentHandler) GetAuditTrail(c *gin.Context) {
	reference := c.Param("reference")
	trail, err := h.payments.AuditTrail(c.Request.Context(), reference)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if trail == nil {
		trail = []models.PaymentAudit{}
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_reference": reference,
		"events":                trail,
		"count":                 len(trail),
	})
}

func (h *PaymentHandler) readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxProviderBody)
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Failed to read request body")
		return nil, false
	}
	return body, true
}
