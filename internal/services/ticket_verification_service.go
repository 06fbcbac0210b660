package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/pkg/events"
	"github.com/inzira/ticketing-core/pkg/ticket"
	"github.com/sirupsen/logrus"
)

// TicketVerificationService redeems tickets at boarding. A ticket can be
// redeemed exactly once; the second scan reports ALREADY_USED.
type TicketVerificationService struct {
	bookings  BookingStore
	trips     TripStore
	publisher events.Publisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewTicketVerificationService creates a new ticket verification service
func NewTicketVerificationService(bookings BookingStore, trips TripStore, publisher events.Publisher, logger *logrus.Logger) *TicketVerificationService {
	return &TicketVerificationService{
		bookings:  bookings,
		trips:     trips,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Redeem checks a ticket against the checker and marks it completed.
// Business rejections come back as a response with Valid=false; the error
// return is reserved for infrastructure failures.
func (s *TicketVerificationService) Redeem(ctx context.Context, checker models.Checker, req *models.VerifyTicketRequest) (*models.TicketVerificationResponse, error) {
	reference := strings.TrimSpace(req.BookingReference)
	if req.QRData != "" {
		payload, err := ticket.ParsePayload(req.QRData)
		if err != nil {
			return models.NewVerificationFailure(models.VerificationInvalidPayload, "QR code is not a valid ticket"), nil
		}
		reference = payload.Reference
	}
	if reference == "" {
		return models.NewVerificationFailure(models.VerificationInvalidPayload, "booking reference or QR data is required"), nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"booking_reference": reference,
		"checker_id":        checker.UserID,
	})

	booking, err := s.bookings.GetByReference(ctx, reference)
	if errors.Is(err, models.ErrNotFound) {
		log.Info("Ticket verification: booking not found")
		return models.NewVerificationFailure(models.VerificationNotFound, "Ticket not found"), nil
	}
	if err != nil {
		return nil, err
	}

	details, err := s.bookings.GetTicketDetails(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	if details.AgencyID != checker.AgencyID {
		log.Warn("Ticket verification: ticket belongs to another agency")
		return models.NewVerificationFailure(models.VerificationInvalidAgency, "Ticket is not for a trip of your agency"), nil
	}
	if checker.DriverScoped && !assignedTo(details.AssignedDriverID, checker.UserID) {
		log.Warn("Ticket verification: checker not assigned to trip")
		return models.NewVerificationFailure(models.VerificationInvalidAssignment, "You are not assigned to this trip"), nil
	}

	switch details.Status {
	case models.BookingStatusCompleted:
		return models.NewVerificationFailure(models.VerificationAlreadyUsed, "Ticket has already been used"), nil
	case models.BookingStatusConfirmed:
	default:
		return models.NewVerificationFailure(models.VerificationInvalidStatus, "Ticket is "+string(details.Status)), nil
	}

	ok, err := s.bookings.Redeem(ctx, booking.ID, checker.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// another scan won the race
		return models.NewVerificationFailure(models.VerificationAlreadyUsed, "Ticket has already been used"), nil
	}

	verifiedAt := s.now()
	log.Info("Ticket redeemed")

	publishEvent(ctx, s.publisher, s.logger, events.New(events.BookingRedeemed, reference, map[string]interface{}{
		"booking_id":        booking.ID,
		"scheduled_trip_id": booking.ScheduledTripID,
		"verified_by":       checker.UserID,
		"verified_at":       verifiedAt,
	}))

	return models.NewVerificationSuccess(details, verifiedAt), nil
}

// TripManifest lists the live bookings of a trip for a checker of that trip
func (s *TicketVerificationService) TripManifest(ctx context.Context, checker models.Checker, tripID uuid.UUID) ([]models.ManifestEntry, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.AgencyID != checker.AgencyID {
		return nil, models.NewDomainError(models.KindForbidden, "%s: trip belongs to another agency", models.VerificationInvalidAgency)
	}
	if checker.DriverScoped && !assignedTo(trip.AssignedDriverID, checker.UserID) {
		return nil, models.NewDomainError(models.KindForbidden, "%s: not assigned to trip", models.VerificationInvalidAssignment)
	}
	return s.bookings.ListManifest(ctx, tripID)
}

func assignedTo(driverID *uuid.UUID, userID uuid.UUID) bool {
	return driverID != nil && *driverID == userID
}
