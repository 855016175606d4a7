package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/pkg/database"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresGuestRepository implements GuestRepository using PostgreSQL
type PostgresGuestRepository struct {
	db database.DBTX
}

// NewPostgresGuestRepository creates a new PostgresGuestRepository
func NewPostgresGuestRepository(db database.DBTX) *PostgresGuestRepository {
	return &PostgresGuestRepository{db: db}
}

// FindOrCreate inserts g unless (venue, phone) already exists and returns the stored row
func (r *PostgresGuestRepository) FindOrCreate(ctx context.Context, g *domain.Guest) (*domain.Guest, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.guest.find_or_create")
	defer span.End()

	span.SetAttributes(attribute.String("venue_id", g.VenueID))

	// DO UPDATE with a no-op assignment so RETURNING yields the existing row
	query := `
		INSERT INTO guests (id, venue_id, phone, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (venue_id, phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, venue_id, phone, first_name, last_name, created_at
	`

	out := &domain.Guest{}
	err := r.db.QueryRow(ctx, query, g.ID, g.VenueID, g.Phone, g.FirstName, g.LastName, g.CreatedAt).Scan(
		&out.ID, &out.VenueID, &out.Phone, &out.FirstName, &out.LastName, &out.CreatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to find or create guest: %w", err)
	}

	span.SetAttributes(attribute.Bool("created", out.ID == g.ID))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// PostgresUserDirectory resolves registered users from the users table
type PostgresUserDirectory struct {
	db database.DBTX
}

// NewPostgresUserDirectory creates a new PostgresUserDirectory
func NewPostgresUserDirectory(db database.DBTX) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

// FindUserIDByPhone returns the id of the account registered with phone
func (d *PostgresUserDirectory) FindUserIDByPhone(ctx context.Context, phone string) (string, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.user.find_by_phone")
	defer span.End()

	var id string
	err := d.db.QueryRow(ctx, `SELECT id FROM users WHERE phone = $1`, phone).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return "", false, nil
		}
		telemetry.RecordError(span, err)
		return "", false, fmt.Errorf("failed to look up user: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return id, true, nil
}
