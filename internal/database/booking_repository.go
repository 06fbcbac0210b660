package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
)

const bookingColumns = `
	id, booking_reference, customer_id, scheduled_trip_id, pickup_point_id, drop_point_id,
	number_of_seats, total_amount, status, payment_status, qr_code, ticket_pdf_path,
	booking_source, created_by_agent_id, passenger_name, passenger_phone, passenger_email,
	confirmed_at, cancelled_at, completed_at, verified_by, created_at, updated_at`

// BookingRepository handles database operations for bookings
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GenerateBookingReference generates a unique booking reference
// Format: BK<yyyyMMddHHmmss><8 hex chars>, e.g. BK20251206143022A1B2C3D4
func (r *BookingRepository) GenerateBookingReference(ctx context.Context, q Queryer) (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		newRef := "BK" + time.Now().Format("20060102150405") + strings.ToUpper(hex.EncodeToString(randomBytes))

		var count int
		err := q.GetContext(ctx, &count, `SELECT COUNT(*) FROM bookings WHERE booking_reference = $1`, newRef)
		if err != nil {
			return "", fmt.Errorf("failed to check reference uniqueness: %w", err)
		}
		if count == 0 {
			return newRef, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique booking reference after 10 attempts")
}

// Create inserts a booking. ID and reference must already be set.
func (r *BookingRepository) Create(ctx context.Context, q Queryer, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, booking_reference, customer_id, scheduled_trip_id, pickup_point_id, drop_point_id,
			number_of_seats, total_amount, status, payment_status, qr_code,
			booking_source, created_by_agent_id, passenger_name, passenger_phone, passenger_email,
			confirmed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		) RETURNING created_at, updated_at`

	err := q.QueryRowxContext(ctx, query,
		b.ID, b.BookingReference, b.CustomerID, b.ScheduledTripID, b.PickupPointID, b.DropPointID,
		b.NumberOfSeats, b.TotalAmount, b.Status, b.PaymentStatus, b.QRCode,
		b.BookingSource, b.CreatedByAgentID, b.PassengerName, b.PassengerPhone, b.PassengerEmail,
		b.ConfirmedAt,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.get(ctx, r.db, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByReference retrieves a booking by its booking reference
func (r *BookingRepository) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return r.get(ctx, r.db, `SELECT`+bookingColumns+` FROM bookings WHERE booking_reference = $1`, reference)
}

// LockByID reads a booking and holds its row lock until q's transaction ends
func (r *BookingRepository) LockByID(ctx context.Context, q Queryer, id uuid.UUID) (*models.Booking, error) {
	return r.get(ctx, q, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepository) get(ctx context.Context, q Queryer, query string, arg interface{}) (*models.Booking, error) {
	booking := &models.Booking{}
	err := q.GetContext(ctx, booking, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.KindNotFound, "booking %v not found", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// ListByCustomer returns a customer's bookings, newest first
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT` + bookingColumns + ` FROM bookings
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &bookings, query, customerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list customer bookings: %w", err)
	}
	return bookings, nil
}

// ListManifest returns the non-cancelled bookings of a trip with point names
func (r *BookingRepository) ListManifest(ctx context.Context, tripID uuid.UUID) ([]models.ManifestEntry, error) {
	entries := []models.ManifestEntry{}
	query := `
		SELECT b.booking_reference, b.passenger_name, b.passenger_phone, b.number_of_seats, b.status,
			pp.name AS pickup_point_name, dp.name AS drop_point_name
		FROM bookings b
		JOIN route_points pp ON pp.id = b.pickup_point_id
		JOIN route_points dp ON dp.id = b.drop_point_id
		WHERE b.scheduled_trip_id = $1 AND b.status <> 'cancelled'
		ORDER BY b.created_at`
	if err := r.db.SelectContext(ctx, &entries, query, tripID); err != nil {
		return nil, fmt.Errorf("failed to list trip manifest: %w", err)
	}
	return entries, nil
}

// GetTicketDetails joins a booking with the data printed on its ticket
func (r *BookingRepository) GetTicketDetails(ctx context.Context, id uuid.UUID) (*models.TicketDetails, error) {
	query := `
		SELECT b.id, b.booking_reference, b.status, b.number_of_seats, b.total_amount,
			b.passenger_name, b.passenger_phone, b.passenger_email, b.qr_code, b.scheduled_trip_id,
			t.agency_id, a.name AS agency_name, t.assigned_driver_id, t.departure_date, t.departure_time,
			od.name AS origin_name, dd.name AS destination_name,
			pp.name AS pickup_point_name, dp.name AS drop_point_name
		FROM bookings b
		JOIN scheduled_trips t ON t.id = b.scheduled_trip_id
		JOIN agencies a ON a.id = t.agency_id
		JOIN districts od ON od.id = t.origin_district_id
		JOIN districts dd ON dd.id = t.destination_district_id
		JOIN route_points pp ON pp.id = b.pickup_point_id
		JOIN route_points dp ON dp.id = b.drop_point_id
		WHERE b.id = $1`

	details := &models.TicketDetails{}
	err := r.db.GetContext(ctx, details, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.KindNotFound, "booking %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket details: %w", err)
	}
	return details, nil
}

// Confirm moves a pending booking to confirmed + paid.
// Returns false when the booking was not pending.
func (r *BookingRepository) Confirm(ctx context.Context, q Queryer, id uuid.UUID) (bool, error) {
	return execOne(ctx, q, `
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'paid', confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
}

// MarkPaid records a successful payment on a live booking, confirming it if
// still pending. Returns false when the booking is cancelled or completed.
func (r *BookingRepository) MarkPaid(ctx context.Context, q Queryer, id uuid.UUID) (bool, error) {
	return execOne(ctx, q, `
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'paid',
			confirmed_at = COALESCE(confirmed_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')`, id)
}

// MarkRefunded flips the payment flag of a paid booking to refunded
func (r *BookingRepository) MarkRefunded(ctx context.Context, q Queryer, id uuid.UUID) (bool, error) {
	return execOne(ctx, q, `
		UPDATE bookings SET payment_status = 'refunded', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'paid'`, id)
}

// Cancel moves a pending or confirmed booking to cancelled
func (r *BookingRepository) Cancel(ctx context.Context, q Queryer, id uuid.UUID) (bool, error) {
	return execOne(ctx, q, `
		UPDATE bookings SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')`, id)
}

// Redeem is the one-shot confirmed → completed transition performed at boarding.
// Returns false when the booking was not confirmed at the time of the update.
func (r *BookingRepository) Redeem(ctx context.Context, id, checkerID uuid.UUID) (bool, error) {
	return execOne(ctx, r.db, `
		UPDATE bookings
		SET status = 'completed', completed_at = NOW(), verified_by = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'`, id, checkerID)
}

// SetTicketPath stores where the rendered ticket document lives
func (r *BookingRepository) SetTicketPath(ctx context.Context, id uuid.UUID, path string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE bookings SET ticket_pdf_path = $2, updated_at = NOW() WHERE id = $1`, id, path); err != nil {
		return fmt.Errorf("failed to set ticket path: %w", err)
	}
	return nil
}

// GetStaleUnpaid returns pending/pending bookings created before cutoff
func (r *BookingRepository) GetStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.StaleBooking, error) {
	stale := []models.StaleBooking{}
	query := `
		SELECT id, scheduled_trip_id, number_of_seats, created_at
		FROM bookings
		WHERE status = 'pending' AND payment_status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &stale, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to get stale unpaid bookings: %w", err)
	}
	return stale, nil
}

// Delete removes a booking row
func (r *BookingRepository) Delete(ctx context.Context, q Queryer, id uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return nil
}

// CountActiveForTrip counts bookings that still hold seats on a trip
func (r *BookingRepository) CountActiveForTrip(ctx context.Context, q Queryer, tripID uuid.UUID) (int, error) {
	var count int
	err := q.GetContext(ctx, &count, `SELECT COUNT(*) FROM bookings WHERE scheduled_trip_id = $1 AND status <> 'cancelled'`, tripID)
	if err != nil {
		return 0, fmt.Errorf("failed to count trip bookings: %w", err)
	}
	return count, nil
}

// execOne runs a conditional update and reports whether exactly one row changed
func execOne(ctx context.Context, q Queryer, query string, args ...interface{}) (bool, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}
