package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxTxAttempts bounds automatic retries of serialization conflicts.
const MaxTxAttempts = 3

// ErrTxConflict is returned after retry attempts are exhausted.
var ErrTxConflict = errors.New("platform/db: transaction conflict, try again")

// WithTx executes fn within a serializable transaction. Serialization
// failures and unique violations raised by concurrent writers are retried up
// to MaxTxAttempts times with jittered backoff before ErrTxConflict is
// surfaced.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < MaxTxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
		err := runTx(ctx, pool, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, lastErr)
}

func runTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsRetryable reports whether err is a transient conflict that a fresh
// transaction may resolve: serialization failure (40001), deadlock (40P01)
// or a unique violation from a racing insert (23505).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

func backoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 25 * time.Millisecond
	return base + time.Duration(rand.Intn(25))*time.Millisecond
}
