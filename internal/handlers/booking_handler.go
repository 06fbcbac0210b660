package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/middleware"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// BookingOperations is the booking lifecycle as seen by the HTTP layer
type BookingOperations interface {
	Create(ctx context.Context, req *models.CreateBookingRequest) (*models.Booking, error)
	Confirm(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByReference(ctx context.Context, reference string) (*models.Booking, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error)
}

// staffRoles may act on bookings they do not own
var staffRoles = []string{jwt.RoleAgent, jwt.RoleAgencyStaff, jwt.RoleAdmin}

// BookingHandler handles passenger and agent booking operations
type BookingHandler struct {
	bookings BookingOperations
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingOperations, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// agentBookingRequest is the body of an agent or counter sale
type agentBookingRequest struct {
	models.CreateBookingRequest
	BookingSource models.BookingSource `json:"booking_source"`
}

// CreateBooking creates a new online booking for the authenticated passenger
// @Summary Create a booking
// @Description Reserves seats on a scheduled trip. The booking stays pending until paid.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.BookingResponse
// @Failure 400 {object} map[string]interface{} "Invalid request, pickup/drop or trip not bookable"
// @Failure 404 {object} map[string]interface{} "Trip not found"
// @Failure 409 {object} map[string]interface{} "Not enough seats"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	req.CustomerID = &userCtx.UserID
	req.CreatedByAgentID = nil
	req.Source = models.BookingSourceOnline

	booking, err := h.bookings.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewBookingResponse(booking))
}

// CreateAgentBooking creates an auto-confirmed booking sold by an agent.
// booking_source may be agent (default), walk_in or guest.
// @Summary Create an agent booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Success 201 {object} models.BookingResponse
// @Security BearerAuth
// @Router /api/v1/agent/bookings [post]
func (h *BookingHandler) CreateAgentBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req agentBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	source := req.BookingSource
	if source == "" {
		source = models.BookingSourceAgent
	}
	if !source.AutoConfirms() {
		badRequest(c, "booking_source must be one of agent, walk_in, guest")
		return
	}

	create := req.CreateBookingRequest
	create.CustomerID = nil
	create.CreatedByAgentID = &userCtx.UserID
	create.Source = source

	booking, err := h.bookings.Create(c.Request.Context(), &create)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewBookingResponse(booking))
}

// GetBooking returns a booking by id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !h.canAccess(c, booking) {
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetBookingByReference returns a booking by its reference
func (h *BookingHandler) GetBookingByReference(c *gin.Context) {
	booking, err := h.bookings.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !h.canAccess(c, booking) {
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetMyBookings lists the authenticated passenger's bookings
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Security BearerAuth
// @Router /api/v1/bookings/my [get]
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.bookings.ListByCustomer(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// ConfirmBooking marks a pending booking as confirmed and paid (staff only)
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.Confirm(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.NewBookingResponse(booking))
}

// CancelBooking cancels a booking and releases its seats
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	existing, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !h.canAccess(c, existing) {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.NewBookingResponse(booking))
}

// canAccess allows the booking's customer and staff. It answers 403 otherwise.
func (h *BookingHandler) canAccess(c *gin.Context, booking *models.Booking) bool {
	userCtx := middleware.MustGetUserContext(c)
	if userCtx.HasRole(staffRoles...) {
		return true
	}
	if booking.CustomerID != nil && *booking.CustomerID == userCtx.UserID {
		return true
	}
	respondError(c, h.logger, models.NewDomainError(models.KindForbidden, "booking belongs to another customer"))
	return false
}
