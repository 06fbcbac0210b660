package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SeatUpdate is pushed to subscribers whenever a trip's available seats change
type SeatUpdate struct {
	Type            string    `json:"type"`
	ScheduledTripID uuid.UUID `json:"scheduled_trip_id"`
	AvailableSeats  int       `json:"available_seats"`
	Timestamp       time.Time `json:"timestamp"`
}

// SeatUpdateHub fans seat updates out to connected SSE clients.
// Publish never blocks: a subscriber whose buffer is full misses the update.
type SeatUpdateHub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan SeatUpdate
	bufferSize  int
	logger      *logrus.Logger
}

// NewSeatUpdateHub creates a hub with per-subscriber buffers of bufferSize
func NewSeatUpdateHub(bufferSize int, logger *logrus.Logger) *SeatUpdateHub {
	if bufferSize < 1 {
		bufferSize = 16
	}
	return &SeatUpdateHub{
		subscribers: make(map[uuid.UUID]chan SeatUpdate),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a new subscriber and returns its id and channel
func (h *SeatUpdateHub) Subscribe() (uuid.UUID, <-chan SeatUpdate) {
	id := uuid.New()
	ch := make(chan SeatUpdate, h.bufferSize)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	h.logger.WithField("subscriber_id", id).Debug("Seat update subscriber connected")
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel
func (h *SeatUpdateHub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	if ok {
		close(ch)
		h.logger.WithField("subscriber_id", id).Debug("Seat update subscriber disconnected")
	}
}

// Publish sends a seat update to every subscriber
func (h *SeatUpdateHub) Publish(tripID uuid.UUID, availableSeats int) {
	update := SeatUpdate{
		Type:            "SEAT_UPDATE",
		ScheduledTripID: tripID,
		AvailableSeats:  availableSeats,
		Timestamp:       time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- update:
		default:
			h.logger.WithField("subscriber_id", id).Warn("Seat update subscriber is slow, dropping update")
		}
	}
}

// SubscriberCount returns the number of connected subscribers
func (h *SeatUpdateHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
