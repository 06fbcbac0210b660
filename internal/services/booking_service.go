package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/database"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/pkg/events"
	"github.com/inzira/ticketing-core/pkg/ticket"
	"github.com/inzira/ticketing-core/pkg/validator"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// BookingService owns booking records and their lifecycle transitions
type BookingService struct {
	tx        TxRunner
	ledger    *SeatLedger
	bookings  BookingStore
	trips     TripStore
	points    RoutePointStore
	payments  PaymentStore
	hub       *SeatUpdateHub
	publisher events.Publisher
	renderer  TicketRenderer // optional
	phones    *validator.PhoneValidator
	currency  string
	logger    *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	tx TxRunner,
	ledger *SeatLedger,
	bookings BookingStore,
	trips TripStore,
	points RoutePointStore,
	payments PaymentStore,
	hub *SeatUpdateHub,
	publisher events.Publisher,
	renderer TicketRenderer,
	currency string,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		tx:        tx,
		ledger:    ledger,
		bookings:  bookings,
		trips:     trips,
		points:    points,
		payments:  payments,
		hub:       hub,
		publisher: publisher,
		renderer:  renderer,
		phones:    validator.NewPhoneValidator(),
		currency:  currency,
		logger:    logger,
	}
}

// Create reserves seats and stores the booking in one transaction.
// Online bookings start pending/pending; agent, walk-in and guest bookings
// are stored confirmed/paid.
func (s *BookingService) Create(ctx context.Context, req *models.CreateBookingRequest) (*models.Booking, error) {
	if req.NumberOfSeats < 1 {
		return nil, models.NewDomainError(models.KindInvalidState, "seat count must be at least 1")
	}
	if err := req.Validate(); err != nil {
		return nil, models.WrapDomainError(models.KindInvalidPayload, err, "%s", err.Error())
	}
	phone, err := s.phones.Normalize(req.PassengerPhone)
	if err != nil {
		return nil, models.WrapDomainError(models.KindInvalidPayload, err, "passenger_phone: %s", err.Error())
	}
	req.PassengerPhone = phone
	if req.Source == "" {
		req.Source = models.BookingSourceOnline
	}

	// districts never change, so the trip can be checked before the lock
	trip, err := s.trips.GetByID(ctx, req.ScheduledTripID)
	if err != nil {
		return nil, err
	}

	var booking *models.Booking
	var availableAfter int
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		pickup, drop, err := s.validatePoints(ctx, tx, trip, req.PickupPointID, req.DropPointID)
		if err != nil {
			return err
		}

		locked, err := s.ledger.Reserve(ctx, tx, req.ScheduledTripID, req.NumberOfSeats)
		if err != nil {
			return err
		}
		availableAfter = locked.AvailableSeats

		reference, err := s.bookings.GenerateBookingReference(ctx, tx)
		if err != nil {
			return err
		}

		b := &models.Booking{
			ID:               uuid.New(),
			BookingReference: reference,
			CustomerID:       req.CustomerID,
			ScheduledTripID:  req.ScheduledTripID,
			PickupPointID:    req.PickupPointID,
			DropPointID:      req.DropPointID,
			NumberOfSeats:    req.NumberOfSeats,
			TotalAmount:      models.TotalFare(locked.PricePerSeat, req.NumberOfSeats),
			Status:           models.BookingStatusPending,
			PaymentStatus:    models.BookingPaymentPending,
			BookingSource:    req.Source,
			CreatedByAgentID: req.CreatedByAgentID,
			PassengerName:    req.PassengerName,
			PassengerPhone:   req.PassengerPhone,
			PassengerEmail:   req.PassengerEmail,
		}
		b.QRCode = ticket.Payload{
			Reference: reference,
			Email:     req.PassengerEmail,
			Route:     pickup.Name + " → " + drop.Name,
			Date:      locked.DepartureDate.Format("2006-01-02") + " " + locked.DepartureTime,
		}.String()

		if req.Source.AutoConfirms() {
			now := time.Now()
			b.Status = models.BookingStatusConfirmed
			b.PaymentStatus = models.BookingPaymentPaid
			b.ConfirmedAt = &now
		}

		if err := s.bookings.Create(ctx, tx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":        booking.ID,
		"booking_reference": booking.BookingReference,
		"trip_id":           booking.ScheduledTripID,
		"seats":             booking.NumberOfSeats,
		"source":            booking.BookingSource,
		"status":            booking.Status,
	}).Info("Booking created")

	s.hub.Publish(booking.ScheduledTripID, availableAfter)
	s.publish(ctx, events.BookingCreated, booking)
	if booking.Status == models.BookingStatusConfirmed {
		s.issueTicket(ctx, booking)
	}
	return booking, nil
}

// validatePoints checks the pickup point lies in the trip's origin district
// and the drop point in its destination district
func (s *BookingService) validatePoints(ctx context.Context, q database.Queryer, trip *models.ScheduledTrip, pickupID, dropID uuid.UUID) (models.RoutePoint, models.RoutePoint, error) {
	points, err := s.points.GetByIDs(ctx, q, pickupID, dropID)
	if err != nil {
		return models.RoutePoint{}, models.RoutePoint{}, err
	}

	pickup, ok := points[pickupID]
	if !ok {
		return pickup, models.RoutePoint{}, models.NewDomainError(models.KindInvalidPickupDrop, "pickup point %s not found", pickupID)
	}
	drop, ok := points[dropID]
	if !ok {
		return pickup, drop, models.NewDomainError(models.KindInvalidPickupDrop, "drop point %s not found", dropID)
	}
	if pickup.DistrictID != trip.OriginDistrictID {
		return pickup, drop, models.NewDomainError(models.KindInvalidPickupDrop, "pickup point is not in the trip's origin district")
	}
	if drop.DistrictID != trip.DestinationDistrictID {
		return pickup, drop, models.NewDomainError(models.KindInvalidPickupDrop, "drop point is not in the trip's destination district")
	}
	return pickup, drop, nil
}

// Confirm moves a pending booking to confirmed/paid
func (s *BookingService) Confirm(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		b, err := s.bookings.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.Status != models.BookingStatusPending {
			return models.NewDomainError(models.KindInvalidState, "booking %s is %s, only pending bookings can be confirmed", b.BookingReference, b.Status)
		}
		ok, err := s.bookings.Confirm(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewDomainError(models.KindInvalidState, "booking %s changed while confirming", b.BookingReference)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("booking_reference", booking.BookingReference).Info("Booking confirmed")
	s.publish(ctx, events.BookingConfirmed, booking)
	s.issueTicket(ctx, booking)
	return booking, nil
}

// Cancel releases a booking's seats and marks it cancelled. A still-pending
// payment is cancelled with it so a late provider success cannot revive it.
func (s *BookingService) Cancel(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var availableAfter int
	var tripID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		b, err := s.bookings.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !b.CanBeCancelled() {
			return models.NewDomainError(models.KindInvalidState, "booking %s is already %s", b.BookingReference, b.Status)
		}
		tripID = b.ScheduledTripID

		trip, err := s.ledger.Release(ctx, tx, b.ScheduledTripID, b.NumberOfSeats)
		if err != nil {
			return err
		}
		availableAfter = trip.AvailableSeats

		ok, err := s.bookings.Cancel(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewDomainError(models.KindInvalidState, "booking %s changed while cancelling", b.BookingReference)
		}

		payment, err := s.payments.GetByBookingID(ctx, tx, id)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusPending {
			reason := "booking cancelled"
			_, err = s.payments.Transition(ctx, tx, payment.TransactionReference,
				models.PaymentStatusPending, models.PaymentStatusCancelled,
				database.TransitionParams{FailureReason: &reason})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_reference": booking.BookingReference,
		"seats_released":    booking.NumberOfSeats,
	}).Info("Booking cancelled")

	s.hub.Publish(tripID, availableAfter)
	s.publish(ctx, events.BookingCancelled, booking)
	return booking, nil
}

// MarkPaid confirms a booking as part of the caller's payment transaction
func (s *BookingService) MarkPaid(ctx context.Context, q database.Queryer, id uuid.UUID) error {
	ok, err := s.bookings.MarkPaid(ctx, q, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewDomainError(models.KindInvalidState, "booking %s is no longer active", id)
	}
	return nil
}

// MarkRefunded flags a paid booking as refunded within the caller's transaction.
// The booking itself stays confirmed.
func (s *BookingService) MarkRefunded(ctx context.Context, q database.Queryer, id uuid.UUID) error {
	ok, err := s.bookings.MarkRefunded(ctx, q, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewDomainError(models.KindInvalidState, "booking %s is not paid", id)
	}
	return nil
}

// AfterPaid runs the post-commit side effects of a successful payment
func (s *BookingService) AfterPaid(ctx context.Context, id uuid.UUID) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", id).Warn("Failed to load paid booking")
		return
	}
	s.publish(ctx, events.BookingConfirmed, booking)
	s.issueTicket(ctx, booking)
}

// Get returns a booking by id
func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// GetByReference returns a booking by its reference
func (s *BookingService) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return s.bookings.GetByReference(ctx, reference)
}

// ListByCustomer returns a page of a customer's bookings
func (s *BookingService) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.ListByCustomer(ctx, customerID, limit, offset)
}

// ListByTrip returns the active bookings of a trip
func (s *BookingService) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]models.ManifestEntry, error) {
	return s.bookings.ListManifest(ctx, tripID)
}

// DeleteTrip removes a scheduled trip that has no active bookings
// and has not departed
func (s *BookingService) DeleteTrip(ctx context.Context, tripID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		trip, err := s.trips.LockByID(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if trip.Status == models.ScheduledTripStatusDeparted || trip.Status == models.ScheduledTripStatusCompleted {
			return models.NewDomainError(models.KindInvalidState, "trip %s has already %s", tripID, trip.Status)
		}

		active, err := s.bookings.CountActiveForTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if active > 0 {
			return models.NewDomainError(models.KindInvalidState, "trip %s still has %d active bookings", tripID, active)
		}

		return s.trips.Delete(ctx, tx, tripID)
	})
	if err != nil {
		return err
	}

	s.logger.WithField("trip_id", tripID).Info("Scheduled trip deleted")
	return nil
}

// issueTicket renders the ticket document. Failures are logged, never returned:
// the booking is already committed and the document can be rendered again.
func (s *BookingService) issueTicket(ctx context.Context, booking *models.Booking) {
	if s.renderer == nil {
		return
	}

	details, err := s.bookings.GetTicketDetails(ctx, booking.ID)
	if err != nil {
		s.logger.WithError(err).WithField("booking_reference", booking.BookingReference).Warn("Failed to load ticket details")
		return
	}

	path, err := s.renderer.Render(ticket.Document{
		BookingReference: details.BookingReference,
		PassengerName:    details.PassengerName,
		PassengerPhone:   details.PassengerPhone,
		AgencyName:       details.AgencyName,
		Route:            details.RouteInfo(),
		Departure:        details.ScheduleInfo(),
		PickupPoint:      details.PickupPointName,
		DropPoint:        details.DropPointName,
		NumberOfSeats:    details.NumberOfSeats,
		TotalAmount:      details.TotalAmount,
		Currency:         s.currency,
		QRPayload:        details.QRCode,
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_reference", booking.BookingReference).Warn("Failed to render ticket")
		return
	}

	if err := s.bookings.SetTicketPath(ctx, booking.ID, path); err != nil {
		s.logger.WithError(err).WithField("booking_reference", booking.BookingReference).Warn("Failed to store ticket path")
		return
	}
	booking.TicketPDFPath = &path
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *models.Booking) {
	publishEvent(ctx, s.publisher, s.logger, events.New(eventType, b.BookingReference, map[string]interface{}{
		"booking_id":        b.ID,
		"scheduled_trip_id": b.ScheduledTripID,
		"number_of_seats":   b.NumberOfSeats,
		"total_amount":      b.TotalAmount,
		"status":            b.Status,
		"payment_status":    b.PaymentStatus,
		"booking_source":    b.BookingSource,
	}))
}

// publishEvent delivers an event after commit; a broker failure is logged only
func publishEvent(ctx context.Context, publisher events.Publisher, logger *logrus.Logger, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type,
			"key":        event.Key,
		}).Warn("Failed to publish event")
	}
}
