package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/pkg/database"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresVenueRepository implements VenueRepository on PostgreSQL
type PostgresVenueRepository struct {
	db database.DBTX
}

// NewPostgresVenueRepository creates a new PostgresVenueRepository
func NewPostgresVenueRepository(db database.DBTX) *PostgresVenueRepository {
	return &PostgresVenueRepository{db: db}
}

// GetByID loads the venue row, then its grounds and combinations
func (r *PostgresVenueRepository) GetByID(ctx context.Context, id string) (*domain.Venue, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.venue.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("venue_id", id))

	query := `
		SELECT id, owner_id, name, timezone, automatic_approval,
			defaults, schedule, archived_at, created_at, updated_at
		FROM venues
		WHERE id = $1
	`

	v := &domain.Venue{}
	var defaults, schedule []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&v.ID,
		&v.OwnerID,
		&v.Name,
		&v.Timezone,
		&v.AutomaticApproval,
		&defaults,
		&schedule,
		&v.ArchivedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrVenueNotFound
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	if err := json.Unmarshal(defaults, &v.Defaults); err != nil {
		return nil, fmt.Errorf("failed to decode venue defaults: %w", err)
	}
	if err := json.Unmarshal(schedule, &v.Schedule); err != nil {
		return nil, fmt.Errorf("failed to decode venue schedule: %w", err)
	}

	if v.Grounds, err = r.listGrounds(ctx, id); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if v.Combinations, err = r.listCombinations(ctx, id); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("grounds", len(v.Grounds)),
		attribute.Int("combinations", len(v.Combinations)),
	)
	span.SetStatus(codes.Ok, "")
	return v, nil
}

func (r *PostgresVenueRepository) listGrounds(ctx context.Context, venueID string) ([]domain.Ground, error) {
	query := `
		SELECT id, venue_id, name, base_price, size, surface, overrides
		FROM grounds
		WHERE venue_id = $1
		ORDER BY position, name
	`

	rows, err := r.db.Query(ctx, query, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grounds: %w", err)
	}
	defer rows.Close()

	var grounds []domain.Ground
	for rows.Next() {
		var (
			g         domain.Ground
			size      string
			surface   string
			overrides []byte
		)
		if err := rows.Scan(&g.ID, &g.VenueID, &g.Name, &g.BasePrice, &size, &surface, &overrides); err != nil {
			return nil, fmt.Errorf("failed to scan ground: %w", err)
		}
		g.Size = domain.GroundSize(size)
		g.Surface = domain.SurfaceType(surface)
		if err := json.Unmarshal(overrides, &g.Overrides); err != nil {
			return nil, fmt.Errorf("failed to decode ground overrides: %w", err)
		}
		grounds = append(grounds, g)
	}
	return grounds, rows.Err()
}

func (r *PostgresVenueRepository) listCombinations(ctx context.Context, venueID string) ([]domain.Combination, error) {
	query := `
		SELECT id, venue_id, name, base_price, overrides, ground_ids
		FROM combinations
		WHERE venue_id = $1
		ORDER BY position, name
	`

	rows, err := r.db.Query(ctx, query, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list combinations: %w", err)
	}
	defer rows.Close()

	var combinations []domain.Combination
	for rows.Next() {
		var (
			c         domain.Combination
			overrides []byte
		)
		if err := rows.Scan(&c.ID, &c.VenueID, &c.Name, &c.BasePrice, &overrides, &c.GroundIDs); err != nil {
			return nil, fmt.Errorf("failed to scan combination: %w", err)
		}
		if err := json.Unmarshal(overrides, &c.Overrides); err != nil {
			return nil, fmt.Errorf("failed to decode combination overrides: %w", err)
		}
		combinations = append(combinations, c)
	}
	return combinations, rows.Err()
}

// UpdateSchedule stores the normalized weekly schedule
func (r *PostgresVenueRepository) UpdateSchedule(ctx context.Context, venueID string, schedule domain.Schedule) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.venue.update_schedule")
	defer span.End()

	span.SetAttributes(attribute.String("venue_id", venueID))

	payload, err := json.Marshal(schedule.Normalized())
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}

	tag, err := r.db.Exec(ctx, `UPDATE venues SET schedule = $2, updated_at = NOW() WHERE id = $1`, venueID, payload)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVenueNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListExceptions returns exceptions of the venue overlapping [start, end)
func (r *PostgresVenueRepository) ListExceptions(ctx context.Context, venueID string, start, end time.Time) ([]domain.ScheduleException, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.venue.list_exceptions")
	defer span.End()

	query := `
		SELECT id, venue_id, target_kind, target_id, start_time, end_time, reason
		FROM schedule_exceptions
		WHERE venue_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, venueID, start, end)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list exceptions: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduleException
	for rows.Next() {
		var (
			x    domain.ScheduleException
			kind string
		)
		if err := rows.Scan(&x.ID, &x.VenueID, &kind, &x.TargetID, &x.StartTime, &x.EndTime, &x.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan exception: %w", err)
		}
		x.TargetKind = domain.TargetKind(kind)
		out = append(out, x)
	}
	if err := rows.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}
