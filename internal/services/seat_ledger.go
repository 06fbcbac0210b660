package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/database"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/sirupsen/logrus"
)

// SeatLedger keeps scheduled_trips.available_seats in step with bookings.
// Both operations run inside the caller's transaction so the seat change
// commits or rolls back together with the booking write it belongs to.
type SeatLedger struct {
	trips  TripStore
	logger *logrus.Logger
}

// NewSeatLedger creates a new seat ledger
func NewSeatLedger(trips TripStore, logger *logrus.Logger) *SeatLedger {
	return &SeatLedger{trips: trips, logger: logger}
}

// Reserve takes n seats from a trip. The trip row stays locked until q commits.
// Returns the trip with its post-reservation seat count.
func (l *SeatLedger) Reserve(ctx context.Context, q database.Queryer, tripID uuid.UUID, n int) (*models.ScheduledTrip, error) {
	if n < 1 {
		return nil, models.NewDomainError(models.KindInvalidState, "seat count must be at least 1")
	}

	trip, err := l.trips.LockByID(ctx, q, tripID)
	if err != nil {
		return nil, err
	}

	if err := trip.ReserveSeats(n); err != nil {
		return nil, err
	}

	ok, err := l.trips.DecrementAvailableSeats(ctx, q, tripID, n)
	if err != nil {
		return nil, err
	}
	if !ok {
		// the locked row said yes but the guarded update said no
		return nil, models.NewDomainError(models.KindInsufficientCapacity, "trip %s no longer has %d seats", tripID, n)
	}

	return trip, nil
}

// Release gives n seats back to a trip, never beyond its capacity.
// Overflow means bookings and seats disagree; it is clamped and logged.
func (l *SeatLedger) Release(ctx context.Context, q database.Queryer, tripID uuid.UUID, n int) (*models.ScheduledTrip, error) {
	if n < 1 {
		return nil, models.NewDomainError(models.KindInvalidState, "seat count must be at least 1")
	}

	trip, err := l.trips.LockByID(ctx, q, tripID)
	if err != nil {
		return nil, err
	}

	if overflow := trip.ReleaseSeats(n); overflow > 0 {
		l.logger.WithFields(logrus.Fields{
			"trip_id":     tripID,
			"released":    n,
			"overflow":    overflow,
			"total_seats": trip.TotalSeats,
		}).Error("Seat release exceeds trip capacity, clamping")
	}

	if err := l.trips.SetAvailableSeats(ctx, q, tripID, trip.AvailableSeats); err != nil {
		return nil, err
	}
	return trip, nil
}
