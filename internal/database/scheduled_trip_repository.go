package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
)

const scheduledTripColumns = `
	id, agency_id, route_id, origin_district_id, destination_district_id,
	bus_id, assigned_driver_id, departure_date, departure_time, price_per_seat,
	total_seats, available_seats, status, created_at, updated_at`

// ScheduledTripRepository handles database operations for scheduled trips
type ScheduledTripRepository struct {
	db DB
}

// NewScheduledTripRepository creates a new ScheduledTripRepository
func NewScheduledTripRepository(db DB) *ScheduledTripRepository {
	return &ScheduledTripRepository{db: db}
}

// GetByID retrieves a scheduled trip by ID
func (r *ScheduledTripRepository) GetByID(ctx context.Context, tripID uuid.UUID) (*models.ScheduledTrip, error) {
	return r.get(ctx, r.db, `SELECT`+scheduledTripColumns+` FROM scheduled_trips WHERE id = $1`, tripID)
}

// LockByID reads a trip and holds its row lock until q's transaction ends
func (r *ScheduledTripRepository) LockByID(ctx context.Context, q Queryer, tripID uuid.UUID) (*models.ScheduledTrip, error) {
	return r.get(ctx, q, `SELECT`+scheduledTripColumns+` FROM scheduled_trips WHERE id = $1 FOR UPDATE`, tripID)
}

func (r *ScheduledTripRepository) get(ctx context.Context, q Queryer, query string, tripID uuid.UUID) (*models.ScheduledTrip, error) {
	trip := &models.ScheduledTrip{}
	err := q.GetContext(ctx, trip, query, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.KindNotFound, "scheduled trip %s not found", tripID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled trip: %w", err)
	}
	return trip, nil
}

// DecrementAvailableSeats takes n seats off a trip. The WHERE clause refuses
// to go below zero, so false means the trip no longer has n seats.
func (r *ScheduledTripRepository) DecrementAvailableSeats(ctx context.Context, q Queryer, tripID uuid.UUID, n int) (bool, error) {
	query := `
		UPDATE scheduled_trips
		SET available_seats = available_seats - $2, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled' AND available_seats >= $2`

	result, err := q.ExecContext(ctx, query, tripID, n)
	if err != nil {
		return false, fmt.Errorf("failed to decrement available seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// SetAvailableSeats writes the available seat count of a locked trip
func (r *ScheduledTripRepository) SetAvailableSeats(ctx context.Context, q Queryer, tripID uuid.UUID, seats int) error {
	query := `
		UPDATE scheduled_trips
		SET available_seats = $2, updated_at = NOW()
		WHERE id = $1 AND $2 BETWEEN 0 AND total_seats`

	result, err := q.ExecContext(ctx, query, tripID, seats)
	if err != nil {
		return fmt.Errorf("failed to set available seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.NewDomainError(models.KindNotFound, "scheduled trip %s not found", tripID)
	}
	return nil
}

// CountByStatus returns the number of trips in each status
func (r *ScheduledTripRepository) CountByStatus(ctx context.Context) (*models.TripStatusStats, error) {
	var rows []struct {
		Status models.ScheduledTripStatus `db:"status"`
		Count  int                        `db:"count"`
	}
	query := `SELECT status, COUNT(*) AS count FROM scheduled_trips GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count trips by status: %w", err)
	}

	stats := &models.TripStatusStats{}
	for _, row := range rows {
		switch row.Status {
		case models.ScheduledTripStatusScheduled:
			stats.Scheduled = row.Count
		case models.ScheduledTripStatusDeparted:
			stats.Departed = row.Count
		case models.ScheduledTripStatusCompleted:
			stats.Completed = row.Count
		case models.ScheduledTripStatusCancelled:
			stats.Cancelled = row.Count
		}
	}
	return stats, nil
}

// AdvancePastTrips moves scheduled trips whose departure date is before today:
// yesterday's trips become departed, anything older becomes completed.
func (r *ScheduledTripRepository) AdvancePastTrips(ctx context.Context, q Queryer, today time.Time) (*models.TripStatusSweepResult, error) {
	yesterday := today.AddDate(0, 0, -1).Format("2006-01-02")

	departed, err := execCount(ctx, q, `
		UPDATE scheduled_trips SET status = 'departed', updated_at = NOW()
		WHERE status = 'scheduled' AND departure_date = $1::date`, yesterday)
	if err != nil {
		return nil, fmt.Errorf("failed to mark departed trips: %w", err)
	}

	completed, err := execCount(ctx, q, `
		UPDATE scheduled_trips SET status = 'completed', updated_at = NOW()
		WHERE status IN ('scheduled', 'departed') AND departure_date < $1::date`, yesterday)
	if err != nil {
		return nil, fmt.Errorf("failed to mark completed trips: %w", err)
	}

	return &models.TripStatusSweepResult{Departed: departed, Completed: completed}, nil
}

// Delete removes a trip row
func (r *ScheduledTripRepository) Delete(ctx context.Context, q Queryer, tripID uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM scheduled_trips WHERE id = $1`, tripID); err != nil {
		return fmt.Errorf("failed to delete scheduled trip: %w", err)
	}
	return nil
}

func execCount(ctx context.Context, q Queryer, query string, args ...interface{}) (int64, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
