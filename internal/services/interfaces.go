package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/database"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/pkg/ticket"
	"github.com/jmoiron/sqlx"
)

// TxRunner opens the transactions services run their writes in.
// Implemented by *database.TxRunner.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// TripStore is the scheduled trip persistence used by the core
type TripStore interface {
	GetByID(ctx context.Context, tripID uuid.UUID) (*models.ScheduledTrip, error)
	LockByID(ctx context.Context, q database.Queryer, tripID uuid.UUID) (*models.ScheduledTrip, error)
	DecrementAvailableSeats(ctx context.Context, q database.Queryer, tripID uuid.UUID, n int) (bool, error)
	SetAvailableSeats(ctx context.Context, q database.Queryer, tripID uuid.UUID, seats int) error
	CountByStatus(ctx context.Context) (*models.TripStatusStats, error)
	AdvancePastTrips(ctx context.Context, q database.Queryer, today time.Time) (*models.TripStatusSweepResult, error)
	Delete(ctx context.Context, q database.Queryer, tripID uuid.UUID) error
}

// BookingStore is the booking persistence used by the core
type BookingStore interface {
	GenerateBookingReference(ctx context.Context, q database.Queryer) (string, error)
	Create(ctx context.Context, q database.Queryer, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByReference(ctx context.Context, reference string) (*models.Booking, error)
	LockByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*models.Booking, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error)
	ListManifest(ctx context.Context, tripID uuid.UUID) ([]models.ManifestEntry, error)
	GetTicketDetails(ctx context.Context, id uuid.UUID) (*models.TicketDetails, error)
	Confirm(ctx context.Context, q database.Queryer, id uuid.UUID) (bool, error)
	MarkPaid(ctx context.Context, q database.Queryer, id uuid.UUID) (bool, error)
	MarkRefunded(ctx context.Context, q database.Queryer, id uuid.UUID) (bool, error)
	Cancel(ctx context.Context, q database.Queryer, id uuid.UUID) (bool, error)
	Redeem(ctx context.Context, id, checkerID uuid.UUID) (bool, error)
	SetTicketPath(ctx context.Context, id uuid.UUID, path string) error
	GetStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.StaleBooking, error)
	Delete(ctx context.Context, q database.Queryer, id uuid.UUID) error
	CountActiveForTrip(ctx context.Context, q database.Queryer, tripID uuid.UUID) (int, error)
}

// PaymentStore is the payment persistence used by the core
type PaymentStore interface {
	Create(ctx context.Context, q database.Queryer, p *models.Payment) error
	GetByReference(ctx context.Context, q database.Queryer, reference string) (*models.Payment, error)
	GetByBookingID(ctx context.Context, q database.Queryer, bookingID uuid.UUID) (*models.Payment, error)
	GetByProviderSession(ctx context.Context, sessionID string) (*models.Payment, error)
	ExistsForBooking(ctx context.Context, q database.Queryer, bookingID uuid.UUID) (bool, error)
	Transition(ctx context.Context, q database.Queryer, reference string, from, to models.PaymentStatus, params database.TransitionParams) (bool, error)
	SetCheckout(ctx context.Context, reference, paymentURL, sessionID string) error
	SetFailureReason(ctx context.Context, reference, reason string) error
	DeletePendingForBooking(ctx context.Context, q database.Queryer, bookingID uuid.UUID) error
}

// RoutePointStore reads pickup and drop points
type RoutePointStore interface {
	GetByIDs(ctx context.Context, q database.Queryer, ids ...uuid.UUID) (map[uuid.UUID]models.RoutePoint, error)
}

// AuditStore appends and reads payment audit entries
type AuditStore interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	GetByReference(ctx context.Context, reference string) ([]models.PaymentAudit, error)
}

// TicketRenderer produces the printable document for a booking
type TicketRenderer interface {
	Render(doc ticket.Document) (string, error)
}

// LeaderLock keeps periodic jobs to one instance at a time
type LeaderLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
