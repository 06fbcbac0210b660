package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/database"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/internal/payments"
	"github.com/inzira/ticketing-core/pkg/events"
	"github.com/inzira/ticketing-core/pkg/ticket"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// memDB is an in-memory stand-in for the tables the services touch.
// memTx serializes transactions and rolls the maps back when fn fails,
// which is the behaviour the services rely on from row locks.
type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	trips    map[uuid.UUID]models.ScheduledTrip
	bookings map[uuid.UUID]models.Booking
	payments map[string]models.Payment
	points   map[uuid.UUID]models.RoutePoint
	details  map[uuid.UUID]models.TicketDetails
	audits   []models.PaymentAudit
	refSeq   int

	failTransition error
	failLog        error
}

func newMemDB() *memDB {
	return &memDB{
		trips:    make(map[uuid.UUID]models.ScheduledTrip),
		bookings: make(map[uuid.UUID]models.Booking),
		payments: make(map[string]models.Payment),
		points:   make(map[uuid.UUID]models.RoutePoint),
		details:  make(map[uuid.UUID]models.TicketDetails),
	}
}

type memSnapshot struct {
	trips    map[uuid.UUID]models.ScheduledTrip
	bookings map[uuid.UUID]models.Booking
	payments map[string]models.Payment
}

func (d *memDB) snapshot() memSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := memSnapshot{
		trips:    make(map[uuid.UUID]models.ScheduledTrip, len(d.trips)),
		bookings: make(map[uuid.UUID]models.Booking, len(d.bookings)),
		payments: make(map[string]models.Payment, len(d.payments)),
	}
	for k, v := range d.trips {
		s.trips[k] = v
	}
	for k, v := range d.bookings {
		s.bookings[k] = v
	}
	for k, v := range d.payments {
		s.payments[k] = v
	}
	return s
}

func (d *memDB) restore(s memSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trips, d.bookings, d.payments = s.trips, s.bookings, s.payments
}

type memTx struct {
	db    *memDB
	calls int
}

func (t *memTx) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()
	t.calls++

	snap := t.db.snapshot()
	if err := fn(nil); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

// trips

type memTrips struct{ db *memDB }

func (s memTrips) GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledTrip, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.trips[id]
	if !ok {
		return nil, models.NewDomainError(models.KindNotFound, "scheduled trip %s not found", id)
	}
	return &t, nil
}

func (s memTrips) LockByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*models.ScheduledTrip, error) {
	return s.GetByID(ctx, id)
}

func (s memTrips) DecrementAvailableSeats(ctx context.Context, q database.Queryer, id uuid.UUID, n int) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.trips[id]
	if !ok || t.Status != models.ScheduledTripStatusScheduled || t.AvailableSeats < n {
		return false, nil
	}
	t.AvailableSeats -= n
	s.db.trips[id] = t
	return true, nil
}

func (s memTrips) SetAvailableSeats(ctx context.Context, q database.Queryer, id uuid.UUID, seats int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t := s.db.trips[id]
	t.AvailableSeats = seats
	s.db.trips[id] = t
	return nil
}

func (s memTrips) CountByStatus(ctx context.Context) (*models.TripStatusStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stats := &models.TripStatusStats{}
	for _, t := range s.db.trips {
		switch t.Status {
		case models.ScheduledTripStatusScheduled:
			stats.Scheduled++
		case models.ScheduledTripStatusDeparted:
			stats.Departed++
		case models.ScheduledTripStatusCompleted:
			stats.Completed++
		case models.ScheduledTripStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func (s memTrips) AdvancePastTrips(ctx context.Context, q database.Queryer, today time.Time) (*models.TripStatusSweepResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	yesterday := today.AddDate(0, 0, -1)
	result := &models.TripStatusSweepResult{}
	for id, t := range s.db.trips {
		day := t.DepartureDay()
		switch {
		case t.Status == models.ScheduledTripStatusScheduled && day.Equal(yesterday):
			t.Status = models.ScheduledTripStatusDeparted
			result.Departed++
		case (t.Status == models.ScheduledTripStatusScheduled || t.Status == models.ScheduledTripStatusDeparted) && day.Before(yesterday):
			t.Status = models.ScheduledTripStatusCompleted
			result.Completed++
		default:
			continue
		}
		s.db.trips[id] = t
	}
	return result, nil
}

func (s memTrips) Delete(ctx context.Context, q database.Queryer, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.trips, id)
	return nil
}

// bookings

type memBookings struct{ db *memDB }

func (s memBookings) GenerateBookingReference(ctx context.Context, q database.Queryer) (string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.refSeq++
	return fmt.Sprintf("BK20260101120000%08X", s.db.refSeq), nil
}

func (s memBookings) Create(ctx context.Context, q database.Queryer, b *models.Booking) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	s.db.bookings[b.ID] = *b
	return nil
}

func (s memBookings) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, models.NewDomainError(models.KindNotFound, "booking %s not found", id)
	}
	return &b, nil
}

func (s memBookings) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, b := range s.db.bookings {
		if b.BookingReference == reference {
			return &b, nil
		}
	}
	return nil, models.NewDomainError(models.KindNotFound, "booking %s not found", reference)
}

func (s memBookings) LockByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*models.Booking, error) {
	return s.GetByID(ctx, id)
}

func (s memBookings) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.Booking{}
	for _, b := range s.db.bookings {
		if b.CustomerID != nil && *b.CustomerID == customerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingReference > out[j].BookingReference })
	if offset >= len(out) {
		return []models.Booking{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memBookings) ListManifest(ctx context.Context, tripID uuid.UUID) ([]models.ManifestEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.ManifestEntry{}
	for _, b := range s.db.bookings {
		if b.ScheduledTripID == tripID && (b.Status == models.BookingStatusConfirmed || b.Status == models.BookingStatusCompleted) {
			out = append(out, models.ManifestEntry{
				BookingReference: b.BookingReference,
				PassengerName:    b.PassengerName,
				NumberOfSeats:    b.NumberOfSeats,
				Status:           b.Status,
			})
		}
	}
	return out, nil
}

func (s memBookings) GetTicketDetails(ctx context.Context, id uuid.UUID) (*models.TicketDetails, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, models.NewDomainError(models.KindNotFound, "booking %s not found", id)
	}
	t := s.db.trips[b.ScheduledTripID]
	d := s.db.details[id]
	d.BookingID = b.ID
	d.BookingReference = b.BookingReference
	d.Status = b.Status
	d.NumberOfSeats = b.NumberOfSeats
	d.TotalAmount = b.TotalAmount
	d.PassengerName = b.PassengerName
	d.PassengerPhone = b.PassengerPhone
	d.QRCode = b.QRCode
	d.ScheduledTripID = b.ScheduledTripID
	d.AgencyID = t.AgencyID
	d.AssignedDriverID = t.AssignedDriverID
	d.DepartureDate = t.DepartureDate
	d.DepartureTime = t.DepartureTime
	return &d, nil
}

func (s memBookings) update(id uuid.UUID, allowed func(models.Booking) bool, change func(*models.Booking)) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok || !allowed(b) {
		return false, nil
	}
	change(&b)
	b.UpdatedAt = time.Now()
	s.db.bookings[id] = b
	return true, nil
}

func (s memBookings) Confirm(ctx context.Context, q database.Queryer, id uuid.UUID) (bool, error) {
	return s.update(id, func(b models.Booking) bool { return b.Status == models.BookingStatusPending }, func(b *models.Booking) {
		now := time.Now()
		b.Status, b.PaymentStatus, b.ConfirmedAt = models.BookingStatusConfirmed, models.BookingPaymentPaid, &now
	})
}

func (s memBookings) MarkPaid(ctx context.Context, q database.Queryer, id uuid.UUID) (bool, error) {
	return s.update(id, func(b models.Booking) bool {
		return b.Status == models.BookingStatusPending || b.Status == models.BookingStatusConfirmed
	}, func(b *models.Booking) {
		b.Status, b.PaymentStatus = models.BookingStatusConfirmed, models.BookingPaymentPaid
		if b.ConfirmedAt == nil {
			now := time.Now()
			b.ConfirmedAt = &now
		}
	})
}

func (s memBookings) MarkRefunded(ctx context.Context, q database.Queryer, id uuid.UUID) (bool, error) {
	return s.update(id, func(b models.Booking) bool { return b.PaymentStatus == models.BookingPaymentPaid }, func(b *models.Booking) {
		b.PaymentStatus = models.BookingPaymentRefunded
	})
}

func (s memBookings) Cancel(ctx context.Context, q database.Queryer, id uuid.UUID) (bool, error) {
	return s.update(id, func(b models.Booking) bool { return b.CanBeCancelled() }, func(b *models.Booking) {
		now := time.Now()
		b.Status, b.CancelledAt = models.BookingStatusCancelled, &now
	})
}

func (s memBookings) Redeem(ctx context.Context, id, checkerID uuid.UUID) (bool, error) {
	return s.update(id, func(b models.Booking) bool { return b.Status == models.BookingStatusConfirmed }, func(b *models.Booking) {
		now := time.Now()
		b.Status, b.CompletedAt, b.VerifiedBy = models.BookingStatusCompleted, &now, &checkerID
	})
}

func (s memBookings) SetTicketPath(ctx context.Context, id uuid.UUID, path string) error {
	_, err := s.update(id, func(models.Booking) bool { return true }, func(b *models.Booking) { b.TicketPDFPath = &path })
	return err
}

func (s memBookings) GetStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.StaleBooking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.StaleBooking{}
	for _, b := range s.db.bookings {
		if b.Status == models.BookingStatusPending && b.PaymentStatus == models.BookingPaymentPending && b.CreatedAt.Before(cutoff) {
			out = append(out, models.StaleBooking{ID: b.ID, ScheduledTripID: b.ScheduledTripID, NumberOfSeats: b.NumberOfSeats, CreatedAt: b.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memBookings) Delete(ctx context.Context, q database.Queryer, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.bookings, id)
	return nil
}

func (s memBookings) CountActiveForTrip(ctx context.Context, q database.Queryer, tripID uuid.UUID) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, b := range s.db.bookings {
		if b.ScheduledTripID == tripID && b.Status != models.BookingStatusCancelled {
			n++
		}
	}
	return n, nil
}

// payments

type memPayments struct{ db *memDB }

func (s memPayments) Create(ctx context.Context, q database.Queryer, p *models.Payment) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.db.payments[p.TransactionReference] = *p
	return nil
}

func (s memPayments) GetByReference(ctx context.Context, q database.Queryer, reference string) (*models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payments[reference]
	if !ok {
		return nil, models.NewDomainError(models.KindNotFound, "payment %s not found", reference)
	}
	return &p, nil
}

func (s memPayments) GetByBookingID(ctx context.Context, q database.Queryer, bookingID uuid.UUID) (*models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.payments {
		if p.BookingID == bookingID {
			return &p, nil
		}
	}
	return nil, models.NewDomainError(models.KindNotFound, "payment for booking %s not found", bookingID)
}

func (s memPayments) GetByProviderSession(ctx context.Context, sessionID string) (*models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.payments {
		if p.ProviderSessionID != nil && *p.ProviderSessionID == sessionID {
			return &p, nil
		}
	}
	return nil, models.NewDomainError(models.KindNotFound, "payment for session %s not found", sessionID)
}

func (s memPayments) ExistsForBooking(ctx context.Context, q database.Queryer, bookingID uuid.UUID) (bool, error) {
	_, err := s.GetByBookingID(ctx, q, bookingID)
	return err == nil, nil
}

func (s memPayments) Transition(ctx context.Context, q database.Queryer, reference string, from, to models.PaymentStatus, params database.TransitionParams) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failTransition != nil {
		return false, s.db.failTransition
	}
	p, ok := s.db.payments[reference]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	if params.CallbackData != nil {
		p.CallbackData = params.CallbackData
	}
	if params.FailureReason != nil {
		p.FailureReason = params.FailureReason
	}
	if params.RefundedAmount != nil {
		p.RefundedAmount = params.RefundedAmount
	}
	p.UpdatedAt = time.Now()
	s.db.payments[reference] = p
	return true, nil
}

func (s memPayments) SetCheckout(ctx context.Context, reference, paymentURL, sessionID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.db.payments[reference]
	p.PaymentURL, p.ProviderSessionID = &paymentURL, &sessionID
	s.db.payments[reference] = p
	return nil
}

func (s memPayments) SetFailureReason(ctx context.Context, reference, reason string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.db.payments[reference]
	p.FailureReason = &reason
	s.db.payments[reference] = p
	return nil
}

func (s memPayments) DeletePendingForBooking(ctx context.Context, q database.Queryer, bookingID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for ref, p := range s.db.payments {
		if p.BookingID == bookingID && p.Status == models.PaymentStatusPending {
			delete(s.db.payments, ref)
		}
	}
	return nil
}

// route points and audit

type memPoints struct{ db *memDB }

func (s memPoints) GetByIDs(ctx context.Context, q database.Queryer, ids ...uuid.UUID) (map[uuid.UUID]models.RoutePoint, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make(map[uuid.UUID]models.RoutePoint)
	for _, id := range ids {
		if p, ok := s.db.points[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type memAudit struct{ db *memDB }

func (s memAudit) Log(ctx context.Context, audit *models.PaymentAudit) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failLog != nil {
		return s.db.failLog
	}
	s.db.audits = append(s.db.audits, *audit)
	return nil
}

func (s memAudit) GetByReference(ctx context.Context, reference string) ([]models.PaymentAudit, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.PaymentAudit{}
	for _, a := range s.db.audits {
		if a.TransactionReference != nil && *a.TransactionReference == reference {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *memDB) auditTypes() []models.PaymentEventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.PaymentEventType, 0, len(d.audits))
	for _, a := range d.audits {
		out = append(out, a.EventType)
	}
	return out
}

// collaborators

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingRenderer struct {
	mu       sync.Mutex
	rendered []string
}

func (r *recordingRenderer) Render(doc ticket.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, doc.BookingReference)
	return "/tickets/TICKET_" + doc.BookingReference + ".pdf", nil
}

// fakeProvider is a scriptable payment provider
type fakeProvider struct {
	name     string
	method   models.PaymentMethod
	redirect bool

	checkoutErr error
	lookup      *payments.Lookup
	lookupErr   error
	event       *payments.Event
	parseErr    error
	refundErr   error

	lookups  int
	refunded []float64
}

func (p *fakeProvider) Name() string                 { return p.name }
func (p *fakeProvider) Method() models.PaymentMethod { return p.method }
func (p *fakeProvider) RequiresRedirect() bool       { return p.redirect }

func (p *fakeProvider) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	if p.checkoutErr != nil {
		return nil, p.checkoutErr
	}
	return &payments.CheckoutSession{SessionID: "cs_" + req.TransactionReference, URL: "https://pay.example/" + req.TransactionReference}, nil
}

func (p *fakeProvider) Lookup(ctx context.Context, sessionID string) (*payments.Lookup, error) {
	p.lookups++
	if p.lookupErr != nil {
		return nil, p.lookupErr
	}
	return p.lookup, nil
}

func (p *fakeProvider) ParseWebhook(body []byte, signature string) (*payments.Event, error) {
	if signature != "valid" {
		return nil, models.NewDomainError(models.KindSignatureInvalid, "bad signature")
	}
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.event, nil
}

func (p *fakeProvider) ParseCallback(body []byte) (*payments.Event, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.event, nil
}

func (p *fakeProvider) Refund(ctx context.Context, payment *models.Payment, amount float64) error {
	if p.refundErr != nil {
		return p.refundErr
	}
	p.refunded = append(p.refunded, amount)
	return nil
}

type fakeLock struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.held {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context, key string) error {
	l.released++
	return nil
}

// fixture wires every service over one memDB

type fixture struct {
	db        *memDB
	tx        *memTx
	hub       *SeatUpdateHub
	publisher *recordingPublisher
	renderer  *recordingRenderer
	stripe    *fakeProvider
	cash      *fakeProvider
	ledger    *SeatLedger
	bookings  *BookingService
	payments  *PaymentService
	verifier  *TicketVerificationService
	logger    *logrus.Logger

	trip   models.ScheduledTrip
	pickup models.RoutePoint
	drop   models.RoutePoint
	agency uuid.UUID
	driver uuid.UUID
}

func newFixture(totalSeats int) *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db := newMemDB()
	f := &fixture{
		db:        db,
		tx:        &memTx{db: db},
		hub:       NewSeatUpdateHub(64, logger),
		publisher: &recordingPublisher{},
		renderer:  &recordingRenderer{},
		stripe:    &fakeProvider{name: "stripe", method: models.PaymentMethodStripe, redirect: true},
		cash:      &fakeProvider{name: "cash", method: models.PaymentMethodCash},
		logger:    logger,
		agency:    uuid.New(),
		driver:    uuid.New(),
	}

	origin, destination := uuid.New(), uuid.New()
	f.pickup = models.RoutePoint{ID: uuid.New(), DistrictID: origin, Name: "Kigali"}
	f.drop = models.RoutePoint{ID: uuid.New(), DistrictID: destination, Name: "Huye"}
	f.trip = models.ScheduledTrip{
		ID:                    uuid.New(),
		AgencyID:              f.agency,
		OriginDistrictID:      origin,
		DestinationDistrictID: destination,
		AssignedDriverID:      &f.driver,
		DepartureDate:         time.Now().AddDate(0, 0, 1),
		DepartureTime:         "08:30",
		PricePerSeat:          1500,
		TotalSeats:            totalSeats,
		AvailableSeats:        totalSeats,
		Status:                models.ScheduledTripStatusScheduled,
	}
	db.trips[f.trip.ID] = f.trip
	db.points[f.pickup.ID] = f.pickup
	db.points[f.drop.ID] = f.drop

	trips, bookings, paymentStore := memTrips{db}, memBookings{db}, memPayments{db}
	f.ledger = NewSeatLedger(trips, logger)
	f.bookings = NewBookingService(f.tx, f.ledger, bookings, trips, memPoints{db}, paymentStore,
		f.hub, f.publisher, f.renderer, "RWF", logger)
	audit := NewPaymentAuditService(memAudit{db}, logger)
	f.payments = NewPaymentService(f.tx, paymentStore, bookings, f.bookings,
		payments.NewRegistry(f.stripe, f.cash), audit, f.publisher, "RWF", logger)
	f.verifier = NewTicketVerificationService(bookings, trips, f.publisher, logger)
	return f
}

func (f *fixture) bookingRequest(seats int) *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		ScheduledTripID: f.trip.ID,
		PickupPointID:   f.pickup.ID,
		DropPointID:     f.drop.ID,
		NumberOfSeats:   seats,
		PassengerName:   "Aline Uwase",
		PassengerPhone:  "+250788000111",
		PassengerEmail:  "aline@example.com",
	}
}

func (f *fixture) availableSeats() int {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.trips[f.trip.ID].AvailableSeats
}

func (f *fixture) booking(id uuid.UUID) models.Booking {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.bookings[id]
}

func (f *fixture) payment(ref string) models.Payment {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.payments[ref]
}

// age moves a booking's creation time into the past
func (f *fixture) age(id uuid.UUID, by time.Duration) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b := f.db.bookings[id]
	b.CreatedAt = b.CreatedAt.Add(-by)
	f.db.bookings[id] = b
}
