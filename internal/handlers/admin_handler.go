package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/sirupsen/logrus"
)

// Reaper runs one sweep of unpaid bookings on demand
type Reaper interface {
	RunOnce(ctx context.Context) (*models.ReapResult, error)
}

// TripStatusSweeper advances past trips and reports per-status counts
type TripStatusSweeper interface {
	RunOnce(ctx context.Context) (*models.TripStatusSweepResult, error)
	Stats(ctx context.Context) (*models.TripStatusStats, error)
}

// TripDeleter removes a scheduled trip with no live bookings
type TripDeleter interface {
	DeleteTrip(ctx context.Context, tripID uuid.UUID) error
}

// AdminHandler handles admin-related HTTP requests
type AdminHandler struct {
	reaper  Reaper
	sweeper TripStatusSweeper
	trips   TripDeleter
	logger  *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(reaper Reaper, sweeper TripStatusSweeper, trips TripDeleter, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		reaper:  reaper,
		sweeper: sweeper,
		trips:   trips,
		logger:  logger,
	}
}

// RunReaper handles POST /api/v1/admin/reaper/run
func (h *AdminHandler) RunReaper(c *gin.Context) {
	result, err := h.reaper.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTripStats handles GET /api/v1/admin/trips/stats
func (h *AdminHandler) GetTripStats(c *gin.Context) {
	stats, err := h.sweeper.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// AdvanceTripStatus handles POST /api/v1/admin/trips/advance-status
func (h *AdminHandler) AdvanceTripStatus(c *gin.Context) {
	result, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"departed":  result.Departed,
		"completed": result.Completed,
		"count":     result.Total(),
	})
}

// DeleteTrip handles DELETE /api/v1/admin/trips/:trip_id
func (h *AdminHandler) DeleteTrip(c *gin.Context) {
	tripID, ok := uuidParam(c, "trip_id")
	if !ok {
		return
	}

	if err := h.trips.DeleteTrip(c.Request.Context(), tripID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "Scheduled trip deleted",
		"scheduled_trip_id": tripID,
	})
}
