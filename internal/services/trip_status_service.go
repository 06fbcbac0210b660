package services

import (
	"context"
	"fmt"
	"time"

	"github.com/inzira/ticketing-core/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TripStatusService advances trips whose departure date has passed.
// Bookings on departed trips can no longer be made; the ledger refuses them.
type TripStatusService struct {
	cron   *cron.Cron
	spec   string
	tx     TxRunner
	trips  TripStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewTripStatusService creates a new trip status service.
// spec is a cron expression with a seconds field.
func NewTripStatusService(tx TxRunner, trips TripStore, spec string, logger *logrus.Logger) *TripStatusService {
	return &TripStatusService{
		cron:   cron.New(cron.WithSeconds()),
		spec:   spec,
		tx:     tx,
		trips:  trips,
		logger: logger,
		now:    time.Now,
	}
}

// Start schedules the sweep
func (s *TripStatusService) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweepJob); err != nil {
		return fmt.Errorf("failed to schedule trip status job: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.spec).Info("Trip status sweep scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *TripStatusService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Trip status sweep stopped")
}

func (s *TripStatusService) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	result, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Trip status sweep failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"departed":  result.Departed,
		"completed": result.Completed,
		"duration":  time.Since(start),
	}).Info("Trip status sweep finished")
}

// RunOnce advances every trip dated before today
func (s *TripStatusService) RunOnce(ctx context.Context) (*models.TripStatusSweepResult, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var result *models.TripStatusSweepResult
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		r, err := s.trips.AdvancePastTrips(ctx, tx, today)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stats returns trip counts per status
func (s *TripStatusService) Stats(ctx context.Context) (*models.TripStatusStats, error) {
	return s.trips.CountByStatus(ctx)
}
