package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/pkg/events"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const reaperLockKey = "reaper:leader"

// ReaperConfig tunes the unpaid booking sweep
type ReaperConfig struct {
	Interval  time.Duration
	Timeout   time.Duration // pending bookings older than this are removed
	BatchSize int
}

// UnpaidBookingReaper deletes bookings whose payment never arrived and gives
// their seats back. Each booking is handled in its own transaction and
// re-checked under lock, so a payment landing mid-sweep always wins.
type UnpaidBookingReaper struct {
	tx        TxRunner
	ledger    *SeatLedger
	bookings  BookingStore
	payments  PaymentStore
	hub       *SeatUpdateHub
	publisher events.Publisher
	lock      LeaderLock // optional
	cfg       ReaperConfig
	logger    *logrus.Logger
	now       func() time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUnpaidBookingReaper creates a new reaper
func NewUnpaidBookingReaper(
	tx TxRunner,
	ledger *SeatLedger,
	bookings BookingStore,
	payments PaymentStore,
	hub *SeatUpdateHub,
	publisher events.Publisher,
	lock LeaderLock,
	cfg ReaperConfig,
	logger *logrus.Logger,
) *UnpaidBookingReaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &UnpaidBookingReaper{
		tx:        tx,
		ledger:    ledger,
		bookings:  bookings,
		payments:  payments,
		hub:       hub,
		publisher: publisher,
		lock:      lock,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start begins the background sweep
func (r *UnpaidBookingReaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	r.logger.WithFields(logrus.Fields{
		"interval": r.cfg.Interval,
		"timeout":  r.cfg.Timeout,
	}).Info("Starting unpaid booking reaper")

	go r.run(ctx)
}

// Stop stops the background sweep and waits for a running pass to finish
func (r *UnpaidBookingReaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.logger.Info("Unpaid booking reaper stopped")
}

func (r *UnpaidBookingReaper) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.WithError(err).Error("Unpaid booking sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single sweep. With a leader lock configured, a sweep
// that cannot take the lock does nothing and returns an empty result.
func (r *UnpaidBookingReaper) RunOnce(ctx context.Context) (*models.ReapResult, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	result := &models.ReapResult{}

	if r.lock != nil {
		acquired, err := r.lock.Acquire(ctx, reaperLockKey, r.cfg.Interval)
		if err != nil {
			return nil, err
		}
		if !acquired {
			r.logger.Debug("Another instance holds the reaper lock, skipping sweep")
			return result, nil
		}
		defer func() {
			if err := r.lock.Release(context.Background(), reaperLockKey); err != nil {
				r.logger.WithError(err).Warn("Failed to release reaper lock")
			}
		}()
	}

	cutoff := r.now().Add(-r.cfg.Timeout)
	stale, err := r.bookings.GetStaleUnpaid(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return result, nil
	}

	seatsByTrip := make(map[uuid.UUID]int)
	for _, candidate := range stale {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		released, availableAfter, err := r.reap(ctx, candidate)
		switch {
		case err != nil:
			result.Failed++
			r.logger.WithError(err).WithField("booking_id", candidate.ID).Error("Failed to reap unpaid booking")
		case released == 0:
			result.Skipped++
		default:
			result.Deleted++
			result.SeatsReleased += released
			seatsByTrip[candidate.ScheduledTripID] = availableAfter

			publishEvent(ctx, r.publisher, r.logger, events.New(events.BookingExpired, candidate.ID.String(), map[string]interface{}{
				"booking_id":        candidate.ID,
				"scheduled_trip_id": candidate.ScheduledTripID,
				"seats_released":    released,
				"created_at":        candidate.CreatedAt,
			}))
		}
	}

	for tripID, seats := range seatsByTrip {
		r.hub.Publish(tripID, seats)
	}

	r.logger.WithFields(logrus.Fields{
		"deleted":        result.Deleted,
		"seats_released": result.SeatsReleased,
		"skipped":        result.Skipped,
		"failed":         result.Failed,
	}).Info("Unpaid booking sweep finished")

	return result, nil
}

// reap removes one booking. Returns the seats released (0 when the booking
// no longer qualifies) and the trip's available seats afterwards.
func (r *UnpaidBookingReaper) reap(ctx context.Context, candidate models.StaleBooking) (int, int, error) {
	var released, availableAfter int
	err := r.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		released, availableAfter = 0, 0

		b, err := r.bookings.LockByID(ctx, tx, candidate.ID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if b.Status != models.BookingStatusPending || b.PaymentStatus != models.BookingPaymentPending {
			return nil
		}

		payment, err := r.payments.GetByBookingID(ctx, tx, b.ID)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			return err
		case payment.Status == models.PaymentStatusSuccess:
			r.logger.WithField("booking_reference", b.BookingReference).Warn("Unpaid booking has a successful payment, leaving it")
			return nil
		}

		trip, err := r.ledger.Release(ctx, tx, b.ScheduledTripID, b.NumberOfSeats)
		if err != nil {
			return err
		}
		if err := r.payments.DeletePendingForBooking(ctx, tx, b.ID); err != nil {
			return err
		}
		if err := r.bookings.Delete(ctx, tx, b.ID); err != nil {
			return err
		}

		released = b.NumberOfSeats
		availableAfter = trip.AvailableSeats
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return released, availableAfter, nil
}
