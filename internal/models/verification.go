package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the outcome of a ticket redemption attempt
type VerificationStatus string

const (
	VerificationValid             VerificationStatus = "VALID"
	VerificationNotFound          VerificationStatus = "NOT_FOUND"
	VerificationInvalidPayload    VerificationStatus = "INVALID_PAYLOAD"
	VerificationInvalidStatus     VerificationStatus = "INVALID_STATUS"
	VerificationInvalidAgency     VerificationStatus = "INVALID_AGENCY"
	VerificationInvalidAssignment VerificationStatus = "INVALID_ASSIGNMENT"
	VerificationAlreadyUsed       VerificationStatus = "ALREADY_USED"
)

// Checker is the staff member scanning tickets
type Checker struct {
	UserID   uuid.UUID
	AgencyID uuid.UUID
	// DriverScoped checkers may only redeem tickets on trips assigned to them
	DriverScoped bool
}

// VerifyTicketRequest looks a ticket up by reference or by scanned QR payload
type VerifyTicketRequest struct {
	BookingReference string `json:"booking_reference"`
	QRData           string `json:"qr_data"`
}

// TicketDetails joins a booking with the trip and reference data shown on a ticket
type TicketDetails struct {
	BookingID        uuid.UUID     `db:"id"`
	BookingReference string        `db:"booking_reference"`
	Status           BookingStatus `db:"status"`
	NumberOfSeats    int           `db:"number_of_seats"`
	TotalAmount      float64       `db:"total_amount"`
	PassengerName    string        `db:"passenger_name"`
	PassengerPhone   string        `db:"passenger_phone"`
	PassengerEmail   string        `db:"passenger_email"`
	QRCode           string        `db:"qr_code"`
	ScheduledTripID  uuid.UUID     `db:"scheduled_trip_id"`
	AgencyID         uuid.UUID     `db:"agency_id"`
	AgencyName       string        `db:"agency_name"`
	AssignedDriverID *uuid.UUID    `db:"assigned_driver_id"`
	DepartureDate    time.Time     `db:"departure_date"`
	DepartureTime    string        `db:"departure_time"`
	OriginName       string        `db:"origin_name"`
	DestinationName  string        `db:"destination_name"`
	PickupPointName  string        `db:"pickup_point_name"`
	DropPointName    string        `db:"drop_point_name"`
}

// RouteInfo renders the route as "Origin → Destination"
func (t *TicketDetails) RouteInfo() string {
	return t.OriginName + " → " + t.DestinationName
}

// ScheduleInfo renders the departure as "2006-01-02 15:04"
func (t *TicketDetails) ScheduleInfo() string {
	return t.DepartureDate.Format("2006-01-02") + " " + t.DepartureTime
}

// TicketVerificationResponse is returned for every redemption attempt
type TicketVerificationResponse struct {
	Status           VerificationStatus `json:"status"`
	Valid            bool               `json:"valid"`
	Message          string             `json:"message"`
	BookingReference string             `json:"booking_reference,omitempty"`
	CustomerName     string             `json:"customer_name,omitempty"`
	CustomerPhone    string             `json:"customer_phone,omitempty"`
	NumberOfSeats    int                `json:"number_of_seats,omitempty"`
	TotalAmount      float64            `json:"total_amount,omitempty"`
	PickupPoint      string             `json:"pickup_point,omitempty"`
	DropPoint        string             `json:"drop_point,omitempty"`
	RouteInfo        string             `json:"route_info,omitempty"`
	ScheduleInfo     string             `json:"schedule_info,omitempty"`
	AgencyName       string             `json:"agency_name,omitempty"`
	VerifiedAt       *time.Time         `json:"verified_at,omitempty"`
}

// NewVerificationFailure builds a rejection response
func NewVerificationFailure(status VerificationStatus, message string) *TicketVerificationResponse {
	return &TicketVerificationResponse{Status: status, Message: message}
}

// NewVerificationSuccess builds the accepted response with the passenger summary
func NewVerificationSuccess(t *TicketDetails, verifiedAt time.Time) *TicketVerificationResponse {
	return &TicketVerificationResponse{
		Status:           VerificationValid,
		Valid:            true,
		Message:          "Ticket verified successfully",
		BookingReference: t.BookingReference,
		CustomerName:     t.PassengerName,
		CustomerPhone:    t.PassengerPhone,
		NumberOfSeats:    t.NumberOfSeats,
		TotalAmount:      t.TotalAmount,
		PickupPoint:      t.PickupPointName,
		DropPoint:        t.DropPointName,
		RouteInfo:        t.RouteInfo(),
		ScheduleInfo:     t.ScheduleInfo(),
		AgencyName:       t.AgencyName,
		VerifiedAt:       &verifiedAt,
	}
}

// ManifestEntry is one booking row in a driver's trip manifest
type ManifestEntry struct {
	BookingReference string        `json:"booking_reference" db:"booking_reference"`
	PassengerName    string        `json:"passenger_name" db:"passenger_name"`
	PassengerPhone   string        `json:"passenger_phone" db:"passenger_phone"`
	NumberOfSeats    int           `json:"number_of_seats" db:"number_of_seats"`
	Status           BookingStatus `json:"status" db:"status"`
	PickupPointName  string        `json:"pickup_point" db:"pickup_point_name"`
	DropPointName    string        `json:"drop_point" db:"drop_point_name"`
}
