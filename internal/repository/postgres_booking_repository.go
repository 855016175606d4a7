package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/pkg/database"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const bookingColumns = `
	id, reference_code, venue_id, target_kind, target_id, ground_ids,
	status, source, start_time, end_time, total_price, currency,
	payment_deadline, cancellation_deadline, recurrence_id, payment_method,
	is_paid, user_id, guest_id, created_by, notes, cancellation_fee,
	status_reason, cancelled_at, created_at, updated_at`

// PostgresBookingRepository implements BookingRepository using PostgreSQL
type PostgresBookingRepository struct {
	db database.DBTX
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(db database.DBTX) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

// Create inserts the booking and one booking_grounds row per occupied ground.
// An exclusion violation on booking_grounds means another transaction took
// the slot first.
func (r *PostgresBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", b.ID),
		attribute.String("venue_id", b.VenueID),
		attribute.String("target_id", b.TargetID),
	)

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22,
			$23, $24, $25, $26
		)
	`

	_, err := r.db.Exec(ctx, query,
		b.ID,
		b.ReferenceCode,
		b.VenueID,
		string(b.TargetKind),
		b.TargetID,
		b.GroundIDs,
		string(b.Status),
		string(b.Source),
		b.StartTime,
		b.EndTime,
		b.TotalPrice,
		b.Currency,
		b.PaymentDeadline,
		b.CancellationDeadline,
		b.RecurrenceID,
		string(b.PaymentMethod),
		b.IsPaid,
		b.UserID,
		b.GuestID,
		b.CreatedBy,
		b.Notes,
		b.CancellationFee,
		b.StatusReason,
		b.CancelledAt,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to create booking: %w", err)
	}

	for _, g := range b.GroundIDs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO booking_grounds (booking_id, ground_id, during, active) VALUES ($1, $2, tstzrange($3, $4, '[)'), $5)`,
			b.ID, g, b.StartTime, b.EndTime, !b.Status.IsTerminal(),
		)
		if err != nil {
			telemetry.RecordError(span, err)
			if database.IsExclusionViolation(err) {
				return &domain.UnavailableError{Slots: []domain.SlotConflict{{
					Start:  b.StartTime,
					End:    b.EndTime,
					Reason: "slot was booked by a concurrent request",
				}}}
			}
			return fmt.Errorf("failed to occupy ground %s: %w", g, err)
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CreateRecurrenceGroup inserts a recurrence group row
func (r *PostgresBookingRepository) CreateRecurrenceGroup(ctx context.Context, g *domain.RecurrenceGroup) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create_recurrence_group")
	defer span.End()

	span.SetAttributes(
		attribute.String("recurrence_id", g.ID),
		attribute.Int("occurrences", g.OccurrenceCount),
	)

	query := `
		INSERT INTO recurrence_groups (
			id, venue_id, frequency, interval, occurrence_count,
			end_date, payment_mode, total_amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		g.ID,
		g.VenueID,
		string(g.Frequency),
		string(g.Interval),
		g.OccurrenceCount,
		g.EndDate,
		string(g.PaymentMode),
		g.TotalAmount,
		g.CreatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to create recurrence group: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return b, nil
}

// ListActiveByGrounds returns active bookings on any of groundIDs overlapping [start, end)
func (r *PostgresBookingRepository) ListActiveByGrounds(ctx context.Context, groundIDs []string, start, end time.Time) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_active_by_grounds")
	defer span.End()

	span.SetAttributes(
		attribute.StringSlice("ground_ids", groundIDs),
		attribute.String("start", start.Format(time.RFC3339)),
		attribute.String("end", end.Format(time.RFC3339)),
	)

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE ground_ids && $1::text[]
			AND start_time < $3
			AND end_time > $2
			AND status <> ALL($4::text[])
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, groundIDs, start, end, statusStrings(domain.InactiveStatuses))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := collectBookings(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// List returns a page of bookings matching filter, newest start first
func (r *PostgresBookingRepository) List(ctx context.Context, f BookingFilter) ([]*domain.Booking, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list")
	defer span.End()

	span.SetAttributes(
		attribute.String("venue_id", f.VenueID),
		attribute.Int("limit", f.Limit),
		attribute.Int("offset", f.Offset),
	)

	where, args := bookingWhere(f)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY start_time DESC, id LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := collectBookings(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, err
	}

	span.SetAttributes(attribute.Int64("total", total))
	span.SetStatus(codes.Ok, "")
	return bookings, total, nil
}

func bookingWhere(f BookingFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.VenueID != "" {
		add("venue_id = $%d", f.VenueID)
	}
	if f.TargetKind != "" {
		add("target_kind = $%d", string(f.TargetKind))
	}
	if f.TargetID != "" {
		add("target_id = $%d", f.TargetID)
	}
	if f.Start != nil {
		add("end_time > $%d", *f.Start)
	}
	if f.End != nil {
		add("start_time < $%d", *f.End)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d::text[])", statusStrings(f.Statuses))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// UpdateStatus changes the status only while the row still holds u.From.
// Leaving the active set releases the booking's ground occupations.
func (r *PostgresBookingRepository) UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update_status")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", u.BookingID),
		attribute.String("from", string(u.From)),
		attribute.String("to", string(u.To)),
	)

	var cancelledAt *time.Time
	if u.To == domain.BookingStatusCancelled {
		cancelledAt = &u.At
	}

	query := `
		UPDATE bookings
		SET status = $3,
			status_reason = $4,
			cancellation_fee = CASE WHEN $5::numeric > 0 THEN $5::numeric ELSE cancellation_fee END,
			cancelled_at = COALESCE($6, cancelled_at),
			updated_at = $7
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, u.BookingID, string(u.From), string(u.To), u.Reason, u.CancellationFee, cancelledAt, u.At)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetAttributes(attribute.Bool("applied", false))
		span.SetStatus(codes.Ok, "")
		return false, nil
	}

	if u.To.IsTerminal() {
		if _, err := r.db.Exec(ctx, `UPDATE booking_grounds SET active = FALSE WHERE booking_id = $1`, u.BookingID); err != nil {
			telemetry.RecordError(span, err)
			return false, fmt.Errorf("failed to release grounds: %w", err)
		}
	}

	span.SetAttributes(attribute.Bool("applied", true))
	span.SetStatus(codes.Ok, "")
	return true, nil
}

// ListDue returns bookings in status whose field is at or before now
func (r *PostgresBookingRepository) ListDue(ctx context.Context, status domain.BookingStatus, field DueField, now time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_due")
	defer span.End()

	span.SetAttributes(
		attribute.String("status", string(status)),
		attribute.String("field", string(field)),
	)

	switch field {
	case DuePaymentDeadline, DueStartTime, DueEndTime:
	default:
		return nil, fmt.Errorf("unsupported due field %q", field)
	}

	extra := ""
	if field == DuePaymentDeadline {
		extra = ` AND is_paid = FALSE AND payment_method <> 'CASH'`
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM bookings
		WHERE status = $1 AND %s <= $2%s
		ORDER BY %s
		LIMIT $3
	`, bookingColumns, field, extra, field)

	rows, err := r.db.Query(ctx, query, string(status), now, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list due bookings: %w", err)
	}

	bookings, err := collectBookings(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

func collectBookings(rows pgx.Rows) ([]*domain.Booking, error) {
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	b := &domain.Booking{}
	var targetKind, status, source, paymentMethod string

	err := row.Scan(
		&b.ID,
		&b.ReferenceCode,
		&b.VenueID,
		&targetKind,
		&b.TargetID,
		&b.GroundIDs,
		&status,
		&source,
		&b.StartTime,
		&b.EndTime,
		&b.TotalPrice,
		&b.Currency,
		&b.PaymentDeadline,
		&b.CancellationDeadline,
		&b.RecurrenceID,
		&paymentMethod,
		&b.IsPaid,
		&b.UserID,
		&b.GuestID,
		&b.CreatedBy,
		&b.Notes,
		&b.CancellationFee,
		&b.StatusReason,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.TargetKind = domain.TargetKind(targetKind)
	b.Status = domain.BookingStatus(status)
	b.Source = domain.BookingSource(source)
	b.PaymentMethod = domain.PaymentMethod(paymentMethod)
	return b, nil
}

func statusStrings(statuses []domain.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
