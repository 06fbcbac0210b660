package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Postgres SQLSTATE codes that mean "the same work may succeed if retried"
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// TxRunner runs units of work in a transaction, retrying on transient contention
type TxRunner struct {
	db          DB
	logger      *logrus.Logger
	maxAttempts int
	backoff     time.Duration
}

// NewTxRunner creates a transaction runner
func NewTxRunner(db DB, logger *logrus.Logger, maxAttempts int) *TxRunner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TxRunner{
		db:          db,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoff:     50 * time.Millisecond,
	}
}

// WithBackoff overrides the base delay between attempts
func (r *TxRunner) WithBackoff(d time.Duration) *TxRunner {
	r.backoff = d
	return r
}

// DB returns the underlying connection for non-transactional reads
func (r *TxRunner) DB() DB {
	return r.db
}

// WithTx runs fn in a read-committed transaction. fn may be called more than
// once; it must not have side effects outside the transaction.
func (r *TxRunner) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) || attempt == r.maxAttempts {
			return err
		}

		r.logger.WithError(err).WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": r.maxAttempts,
		}).Warn("Transaction hit contention, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return err
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a transient Postgres contention error
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
		return true
	}
	return false
}
