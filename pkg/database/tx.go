package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the booking engine reacts to
const (
	SQLStateSerializationFailure = "40001"
	SQLStateDeadlockDetected     = "40P01"
	SQLStateExclusionViolation   = "23P01"
	SQLStateUniqueViolation      = "23505"
)

// ErrTxTimeout is returned when a transaction exceeds its time budget
var ErrTxTimeout = errors.New("transaction timed out")

// ErrSerialization is returned when the transaction lost a serialization race
var ErrSerialization = errors.New("serialization failure")

// RunSerializable runs fn inside a SERIALIZABLE transaction bounded by timeout.
// Serialization failures and deadlocks are reported as ErrSerialization and
// deadline overruns as ErrTxTimeout, both wrapping the driver error.
func (db *PostgresDB) RunSerializable(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return ClassifyTxError(ctx, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(context.Background())

	if err := fn(ctx, tx); err != nil {
		return ClassifyTxError(ctx, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ClassifyTxError(ctx, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// ClassifyTxError maps driver and context errors onto ErrSerialization / ErrTxTimeout.
// Errors that are neither are returned unchanged.
func ClassifyTxError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTxTimeout, err)
	}
	return err
}

// IsSerializationFailure reports whether err carries SQLSTATE 40001 or 40P01
func IsSerializationFailure(err error) bool {
	return hasSQLState(err, SQLStateSerializationFailure, SQLStateDeadlockDetected)
}

// IsExclusionViolation reports whether err is an exclusion constraint violation
func IsExclusionViolation(err error) bool {
	return hasSQLState(err, SQLStateExclusionViolation)
}

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return hasSQLState(err, SQLStateUniqueViolation)
}

func hasSQLState(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, c := range codes {
		if pgErr.Code == c {
			return true
		}
	}
	return false
}
