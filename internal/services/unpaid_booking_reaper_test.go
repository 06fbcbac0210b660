package services

import (
	"context"
	"testing"
	"time"

	"github.com/inzira/ticketing-core/internal/models"
	"github.com/inzira/ticketing-core/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) newReaper(lock LeaderLock) *UnpaidBookingReaper {
	return NewUnpaidBookingReaper(f.tx, f.ledger, memBookings{f.db}, memPayments{f.db}, f.hub, f.publisher, lock,
		ReaperConfig{Interval: time.Minute, Timeout: 5 * time.Minute, BatchSize: 100}, f.logger)
}

func TestUnpaidBookingReaper_RunOnce(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()
	subID, updates := f.hub.Subscribe()
	defer f.hub.Unsubscribe(subID)

	// stale, unpaid, with a pending payment
	stale, staleRef := f.pendingPayment(t)
	f.age(stale.ID, 10*time.Minute)

	// stale but paid in the meantime
	paid, paidRef := f.pendingPayment(t)
	f.stripe.event = paidEvent(paidRef, 3000)
	_, err := f.payments.HandleWebhook(ctx, "stripe", []byte(`{}`), "valid", testMeta)
	require.NoError(t, err)
	f.age(paid.ID, 10*time.Minute)

	// fresh and unpaid
	fresh, err := f.bookings.Create(ctx, f.bookingRequest(1))
	require.NoError(t, err)

	assert.Equal(t, 5, f.availableSeats())
	for len(updates) > 0 {
		<-updates
	}

	result, err := f.newReaper(nil).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 2, result.SeatsReleased)
	assert.Equal(t, 0, result.Failed)

	assert.Equal(t, 7, f.availableSeats())
	assert.NotContains(t, f.db.bookings, stale.ID)
	assert.NotContains(t, f.db.payments, staleRef)
	assert.Contains(t, f.db.bookings, paid.ID)
	assert.Contains(t, f.db.bookings, fresh.ID)
	assert.Equal(t, 7, (<-updates).AvailableSeats)
	assert.Contains(t, f.publisher.types(), events.BookingExpired)

	again, err := f.newReaper(nil).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Deleted)
	assert.Equal(t, 7, f.availableSeats(), "a second sweep releases nothing")
}

func TestUnpaidBookingReaper_SkipsBookingPaidAfterSelection(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()

	booking, err := f.bookings.Create(ctx, f.bookingRequest(2))
	require.NoError(t, err)
	f.age(booking.ID, time.Hour)

	reaper := f.newReaper(nil)
	candidates, err := memBookings{f.db}.GetStaleUnpaid(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	// payment lands between selection and the per-booking transaction
	_, err = f.bookings.Confirm(ctx, booking.ID)
	require.NoError(t, err)

	released, _, err := reaper.reap(ctx, candidates[0])
	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.Equal(t, 8, f.availableSeats())
	assert.Contains(t, f.db.bookings, booking.ID)
}

func TestUnpaidBookingReaper_KeepsBookingWithSuccessfulPayment(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()

	booking, ref := f.pendingPayment(t)
	f.age(booking.ID, time.Hour)

	// payment row says SUCCESS but the booking flag was never flipped
	p := f.db.payments[ref]
	p.Status = models.PaymentStatusSuccess
	f.db.payments[ref] = p

	result, err := f.newReaper(nil).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 1, result.Skipped)
	assert.Contains(t, f.db.bookings, booking.ID)
	assert.Equal(t, 8, f.availableSeats())
}

func TestUnpaidBookingReaper_LeaderLock(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()

	booking, err := f.bookings.Create(ctx, f.bookingRequest(1))
	require.NoError(t, err)
	f.age(booking.ID, time.Hour)

	held := &fakeLock{held: true}
	result, err := f.newReaper(held).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.Contains(t, f.db.bookings, booking.ID)

	free := &fakeLock{}
	result, err = f.newReaper(free).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, free.acquired)
	assert.Equal(t, 1, free.released)
}

func TestUnpaidBookingReaper_StartStop(t *testing.T) {
	f := newFixture(10)
	reaper := NewUnpaidBookingReaper(f.tx, f.ledger, memBookings{f.db}, memPayments{f.db}, f.hub, f.publisher, nil,
		ReaperConfig{Interval: 10 * time.Millisecond, Timeout: time.Millisecond}, f.logger)

	booking, err := f.bookings.Create(context.Background(), f.bookingRequest(1))
	require.NoError(t, err)
	f.age(booking.ID, time.Second)

	reaper.Start(context.Background())
	assert.Eventually(t, func() bool {
		f.db.mu.Lock()
		defer f.db.mu.Unlock()
		_, ok := f.db.bookings[booking.ID]
		return !ok
	}, time.Second, 10*time.Millisecond)
	reaper.Stop()

	assert.Equal(t, 10, f.availableSeats())
}

func TestUnpaidBookingReaper_Defaults(t *testing.T) {
	f := newFixture(1)
	reaper := NewUnpaidBookingReaper(f.tx, f.ledger, memBookings{f.db}, memPayments{f.db}, f.hub, nil, nil, ReaperConfig{}, f.logger)
	assert.Equal(t, time.Minute, reaper.cfg.Interval)
	assert.Equal(t, 5*time.Minute, reaper.cfg.Timeout)
	assert.Equal(t, 100, reaper.cfg.BatchSize)

	reaper.Stop() // never started
}
