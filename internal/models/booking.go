package models

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingPaymentStatus is the payment flag carried on the booking row
type BookingPaymentStatus string

const (
	BookingPaymentPending  BookingPaymentStatus = "pending"
	BookingPaymentPaid     BookingPaymentStatus = "paid"
	BookingPaymentRefunded BookingPaymentStatus = "refunded"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// BookingSource identifies the channel a booking was sold through
type BookingSource string

const (
	BookingSourceOnline BookingSource = "online"
	BookingSourceAgent  BookingSource = "agent"
	BookingSourceGuest  BookingSource = "guest"
	BookingSourceWalkIn BookingSource = "walk_in"
)

// AutoConfirms reports whether bookings from this channel skip online payment
func (s BookingSource) AutoConfirms() bool {
	return s == BookingSourceAgent || s == BookingSourceWalkIn || s == BookingSourceGuest
}

// Booking is a reservation of one or more seats on a scheduled trip
type Booking struct {
	ID               uuid.UUID            `json:"id" db:"id"`
	BookingReference string               `json:"booking_reference" db:"booking_reference"`
	CustomerID       *uuid.UUID           `json:"customer_id,omitempty" db:"customer_id"`
	ScheduledTripID  uuid.UUID            `json:"scheduled_trip_id" db:"scheduled_trip_id"`
	PickupPointID    uuid.UUID            `json:"pickup_point_id" db:"pickup_point_id"`
	DropPointID      uuid.UUID            `json:"drop_point_id" db:"drop_point_id"`
	NumberOfSeats    int                  `json:"number_of_seats" db:"number_of_seats"`
	TotalAmount      float64              `json:"total_amount" db:"total_amount"`
	Status           BookingStatus        `json:"status" db:"status"`
	PaymentStatus    BookingPaymentStatus `json:"payment_status" db:"payment_status"`
	QRCode           string               `json:"qr_code" db:"qr_code"`
	TicketPDFPath    *string              `json:"ticket_pdf_path,omitempty" db:"ticket_pdf_path"`
	BookingSource    BookingSource        `json:"booking_source" db:"booking_source"`
	CreatedByAgentID *uuid.UUID           `json:"created_by_agent_id,omitempty" db:"created_by_agent_id"`
	PassengerName    string               `json:"passenger_name" db:"passenger_name"`
	PassengerPhone   string               `json:"passenger_phone" db:"passenger_phone"`
	PassengerEmail   string               `json:"passenger_email" db:"passenger_email"`
	ConfirmedAt      *time.Time           `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt      *time.Time           `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
	VerifiedBy       *uuid.UUID           `json:"verified_by,omitempty" db:"verified_by"`
	CreatedAt        time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at" db:"updated_at"`
}

// CanBeCancelled checks if the booking may still be cancelled
func (b *Booking) CanBeCancelled() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// IsPaid reports whether the booking has been paid for
func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == BookingPaymentPaid
}

// CreateBookingRequest represents the request to create a booking
type CreateBookingRequest struct {
	ScheduledTripID uuid.UUID `json:"scheduled_trip_id" binding:"required"`
	PickupPointID   uuid.UUID `json:"pickup_point_id" binding:"required"`
	DropPointID     uuid.UUID `json:"drop_point_id" binding:"required"`
	NumberOfSeats   int       `json:"number_of_seats" binding:"required"`
	PassengerName   string    `json:"passenger_name" binding:"required"`
	PassengerPhone  string    `json:"passenger_phone" binding:"required"`
	PassengerEmail  string    `json:"passenger_email"`

	// Set by the transport layer, never bound from the request body
	CustomerID       *uuid.UUID    `json:"-"`
	CreatedByAgentID *uuid.UUID    `json:"-"`
	Source           BookingSource `json:"-"`
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	if r.NumberOfSeats < 1 {
		return errors.New("number_of_seats must be at least 1")
	}
	if r.ScheduledTripID == uuid.Nil {
		return errors.New("scheduled_trip_id is required")
	}
	if r.PickupPointID == uuid.Nil || r.DropPointID == uuid.Nil {
		return errors.New("pickup_point_id and drop_point_id are required")
	}
	if strings.TrimSpace(r.PassengerName) == "" {
		return errors.New("passenger_name is required")
	}
	return nil
}

// BookingResponse is returned after a booking is created
type BookingResponse struct {
	ID               uuid.UUID            `json:"id"`
	BookingReference string               `json:"booking_reference"`
	ScheduledTripID  uuid.UUID            `json:"scheduled_trip_id"`
	NumberOfSeats    int                  `json:"number_of_seats"`
	TotalAmount      float64              `json:"total_amount"`
	Status           BookingStatus        `json:"status"`
	PaymentStatus    BookingPaymentStatus `json:"payment_status"`
	QRCode           string               `json:"qr_code"`
	TicketPDFPath    *string              `json:"ticket_pdf_path,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

// NewBookingResponse builds a response from a stored booking
func NewBookingResponse(b *Booking) *BookingResponse {
	return &BookingResponse{
		ID:               b.ID,
		BookingReference: b.BookingReference,
		ScheduledTripID:  b.ScheduledTripID,
		NumberOfSeats:    b.NumberOfSeats,
		TotalAmount:      b.TotalAmount,
		Status:           b.Status,
		PaymentStatus:    b.PaymentStatus,
		QRCode:           b.QRCode,
		TicketPDFPath:    b.TicketPDFPath,
		CreatedAt:        b.CreatedAt,
	}
}

// StaleBooking is the minimal projection the reaper needs
type StaleBooking struct {
	ID              uuid.UUID `db:"id"`
	ScheduledTripID uuid.UUID `db:"scheduled_trip_id"`
	NumberOfSeats   int       `db:"number_of_seats"`
	CreatedAt       time.Time `db:"created_at"`
}

// ReapResult summarises one reaper sweep
type ReapResult struct {
	Deleted       int `json:"deleted"`
	SeatsReleased int `json:"seats_released"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

// RoutePoint is a pickup or drop location inside a district
type RoutePoint struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DistrictID uuid.UUID `json:"district_id" db:"district_id"`
	Name       string    `json:"name" db:"name"`
}

// TotalFare computes price × seats rounded to minor units
func TotalFare(pricePerSeat float64, seats int) float64 {
	return math.Round(pricePerSeat*float64(seats)*100) / 100
}
