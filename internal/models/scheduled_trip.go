package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledTripStatus represents the status of a scheduled trip
type ScheduledTripStatus string

const (
	ScheduledTripStatusScheduled ScheduledTripStatus = "scheduled"
	ScheduledTripStatusDeparted  ScheduledTripStatus = "departed"
	ScheduledTripStatusCompleted ScheduledTripStatus = "completed"
	ScheduledTripStatusCancelled ScheduledTripStatus = "cancelled"
)

// ScheduledTrip is a dated departure of a bus on a route, carrying the seat ledger
type ScheduledTrip struct {
	ID                    uuid.UUID           `json:"id" db:"id"`
	AgencyID              uuid.UUID           `json:"agency_id" db:"agency_id"`
	RouteID               uuid.UUID           `json:"route_id" db:"route_id"`
	OriginDistrictID      uuid.UUID           `json:"origin_district_id" db:"origin_district_id"`
	DestinationDistrictID uuid.UUID           `json:"destination_district_id" db:"destination_district_id"`
	BusID                 *uuid.UUID          `json:"bus_id,omitempty" db:"bus_id"`
	AssignedDriverID      *uuid.UUID          `json:"assigned_driver_id,omitempty" db:"assigned_driver_id"`
	DepartureDate         time.Time           `json:"departure_date" db:"departure_date"`
	DepartureTime         string              `json:"departure_time" db:"departure_time"`
	PricePerSeat          float64             `json:"price_per_seat" db:"price_per_seat"`
	TotalSeats            int                 `json:"total_seats" db:"total_seats"`
	AvailableSeats        int                 `json:"available_seats" db:"available_seats"`
	Status                ScheduledTripStatus `json:"status" db:"status"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`
}

// IsBookable reports whether the trip still sells seats
func (s *ScheduledTrip) IsBookable() bool {
	return s.Status == ScheduledTripStatusScheduled
}

// CanAcceptBooking checks if the trip can accept a booking of the given size
func (s *ScheduledTrip) CanAcceptBooking(seats int) bool {
	return s.IsBookable() && seats > 0 && s.AvailableSeats >= seats
}

// BookedSeats is the number of seats held by non-cancelled bookings
func (s *ScheduledTrip) BookedSeats() int {
	return s.TotalSeats - s.AvailableSeats
}

// ReserveSeats takes seats out of the available pool
func (s *ScheduledTrip) ReserveSeats(seats int) error {
	if seats < 1 {
		return NewDomainError(KindInvalidState, "seat count must be at least 1")
	}
	if !s.IsBookable() {
		return NewDomainError(KindTripNotBookable, "trip %s is %s", s.ID, s.Status)
	}
	if s.AvailableSeats < seats {
		return NewDomainError(KindInsufficientCapacity, "requested %d seats, %d available", seats, s.AvailableSeats)
	}

	s.AvailableSeats -= seats
	return nil
}

// ReleaseSeats returns seats to the pool. The result never exceeds capacity;
// the clamped amount is returned so callers can report the inconsistency.
func (s *ScheduledTrip) ReleaseSeats(seats int) (overflow int) {
	s.AvailableSeats += seats
	if s.AvailableSeats > s.TotalSeats {
		overflow = s.AvailableSeats - s.TotalSeats
		s.AvailableSeats = s.TotalSeats
	}
	return overflow
}

// DepartureDay returns the departure date truncated to a calendar day
func (s *ScheduledTrip) DepartureDay() time.Time {
	y, m, d := s.DepartureDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.DepartureDate.Location())
}

// TripStatusStats counts trips per status
type TripStatusStats struct {
	Scheduled int `json:"scheduled"`
	Departed  int `json:"departed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// TripStatusSweepResult reports how many trips moved during a status sweep
type TripStatusSweepResult struct {
	Departed  int64 `json:"departed"`
	Completed int64 `json:"completed"`
}

// Total returns the number of trips updated
func (r TripStatusSweepResult) Total() int64 {
	return r.Departed + r.Completed
}
