package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/middleware"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/sirupsen/logrus"
)

// TicketOperations is ticket redemption as seen by the HTTP layer
type TicketOperations interface {
	Redeem(ctx context.Context, checker models.Checker, req *models.VerifyTicketRequest) (*models.TicketVerificationResponse, error)
	TripManifest(ctx context.Context, checker models.Checker, tripID uuid.UUID) ([]models.ManifestEntry, error)
}

// TicketHandler handles boarding-time ticket checks by drivers and agency staff
type TicketHandler struct {
	tickets TicketOperations
	logger  *logrus.Logger
}

// NewTicketHandler creates a new TicketHandler
func NewTicketHandler(tickets TicketOperations, logger *logrus.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, logger: logger}
}

// VerifyTicket redeems a ticket by reference or scanned QR payload.
// Every verification outcome is answered with 200; the status field says which.
// @Summary Verify and redeem a ticket
// @Tags Tickets
// @Accept json
// @Produce json
// @Param request body models.VerifyTicketRequest true "booking_reference or qr_data"
// @Success 200 {object} models.TicketVerificationResponse
// @Failure 403 {object} map[string]interface{} "Not attached to an agency"
// @Security BearerAuth
// @Router /api/v1/tickets/verify [post]
func (h *TicketHandler) VerifyTicket(c *gin.Context) {
	checker, ok := h.checker(c)
	if !ok {
		return
	}

	var req models.VerifyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.tickets.Redeem(c.Request.Context(), checker, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetTripManifest lists the bookings of a trip the checker works on
func (h *TicketHandler) GetTripManifest(c *gin.Context) {
	checker, ok := h.checker(c)
	if !ok {
		return
	}
	tripID, ok := uuidParam(c, "trip_id")
	if !ok {
		return
	}

	entries, err := h.tickets.TripManifest(c.Request.Context(), checker, tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if entries == nil {
		entries = []models.ManifestEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"scheduled_trip_id": tripID,
		"bookings":          entries,
		"count":             len(entries),
	})
}

func (h *TicketHandler) checker(c *gin.Context) (models.Checker, bool) {
	checker, ok := middleware.MustGetUserContext(c).Checker()
	if !ok {
		respondError(c, h.logger, models.NewDomainError(models.KindForbidden, "account is not attached to an agency"))
		return models.Checker{}, false
	}
	return checker, true
}
