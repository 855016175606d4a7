package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/pkg/database"
)

// NewPostgresRepositories builds repositories over db, which may be the pool
// or an open transaction
func NewPostgresRepositories(db database.DBTX) *Repositories {
	return &Repositories{
		Venues:   NewPostgresVenueRepository(db),
		Bookings: NewPostgresBookingRepository(db),
		Guests:   NewPostgresGuestRepository(db),
		Users:    NewPostgresUserDirectory(db),
	}
}

// PostgresTransactor runs repository work in SERIALIZABLE transactions
type PostgresTransactor struct {
	db      *database.PostgresDB
	timeout time.Duration
}

// NewPostgresTransactor creates a transactor bounding every transaction by timeout
func NewPostgresTransactor(db *database.PostgresDB, timeout time.Duration) *PostgresTransactor {
	return &PostgresTransactor{db: db, timeout: timeout}
}

// RunSerializable implements Transactor
func (t *PostgresTransactor) RunSerializable(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	err := t.db.RunSerializable(ctx, t.timeout, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewPostgresRepositories(tx))
	})
	return mapTxError(err)
}

func mapTxError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrSerialization):
		return fmt.Errorf("%w: %w", domain.ErrRetryableConflict, err)
	case errors.Is(err, database.ErrTxTimeout):
		return fmt.Errorf("%w: %w", domain.ErrTransactionTimeout, err)
	default:
		return err
	}
}
