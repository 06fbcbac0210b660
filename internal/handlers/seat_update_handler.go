package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/services"
	"github.com/sirupsen/logrus"
)

// SeatUpdateSource hands out seat update subscriptions
type SeatUpdateSource interface {
	Subscribe() (uuid.UUID, <-chan services.SeatUpdate)
	Unsubscribe(id uuid.UUID)
}

// SeatUpdateHandler streams seat availability changes as Server-Sent Events
type SeatUpdateHandler struct {
	hub       SeatUpdateSource
	heartbeat time.Duration
	logger    *logrus.Logger
}

// NewSeatUpdateHandler creates a new SeatUpdateHandler
func NewSeatUpdateHandler(hub SeatUpdateSource, heartbeat time.Duration, logger *logrus.Logger) *SeatUpdateHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &SeatUpdateHandler{hub: hub, heartbeat: heartbeat, logger: logger}
}

// Stream handles GET /api/v1/sse/seat-updates. An optional trip_id query
// parameter limits the stream to one trip.
func (h *SeatUpdateHandler) Stream(c *gin.Context) {
	var tripFilter uuid.UUID
	if raw := c.Query("trip_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "invalid trip_id")
			return
		}
		tripFilter = id
	}

	subscriberID, updates := h.hub.Subscribe()
	defer h.hub.Unsubscribe(subscriberID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("connected", gin.H{"subscriber_id": subscriberID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.WithField("subscriber_id", subscriberID).Debug("Seat update stream closed")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if tripFilter != uuid.Nil && update.ScheduledTripID != tripFilter {
				continue
			}
			c.SSEvent("seat-update", update)
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().Unix()})
		}
		c.Writer.Flush()
	}
}
