package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/metrics"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/pkg/logger"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrUnknownJobKind is returned for jobs no transition exists for
var ErrUnknownJobKind = errors.New("unknown lifecycle job kind")

// LifecycleService applies deferred status transitions
type LifecycleService interface {
	// Apply runs job. It reports false without error when the booking has
	// already left the job's source status, so redelivery is harmless.
	Apply(ctx context.Context, job domain.LifecycleJob) (bool, error)

	// Sweep applies up to limit overdue transitions of each kind straight
	// from the store and reports how many were applied
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

type lifecycleService struct {
	repos  *repository.Repositories
	tx     repository.Transactor
	events EventPublisher
	now    func() time.Time
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(repos *repository.Repositories, tx repository.Transactor, events EventPublisher, now func() time.Time) LifecycleService {
	if events == nil {
		events = NewNoOpEventPublisher()
	}
	if now == nil {
		now = time.Now
	}
	return &lifecycleService{repos: repos, tx: tx, events: events, now: now}
}

var sweepOrder = []struct {
	kind  domain.JobKind
	field repository.DueField
}{
	{domain.JobPaymentExpiry, repository.DuePaymentDeadline},
	{domain.JobStart, repository.DueStartTime},
	{domain.JobEnd, repository.DueEndTime},
}

func (s *lifecycleService) Apply(ctx context.Context, job domain.LifecycleJob) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lifecycle.apply")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", job.ID),
		attribute.String("booking_id", job.BookingID),
		attribute.Int("attempts", job.Attempts),
	)

	applied, err := s.transition(ctx, job.Kind, job.BookingID, s.now(), "job")
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("applied", applied))
	span.SetStatus(codes.Ok, "")
	return applied, nil
}

func (s *lifecycleService) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lifecycle.sweep")
	defer span.End()

	total := 0
	for _, step := range sweepOrder {
		from, _, _ := step.kind.Transition()
		due, err := s.repos.Bookings.ListDue(ctx, from, step.field, now, limit)
		if err != nil {
			telemetry.RecordError(span, err)
			return total, fmt.Errorf("failed to list due %s bookings: %w", step.kind, err)
		}

		repaired := 0
		for _, b := range due {
			applied, err := s.transition(ctx, step.kind, b.ID, now, "sweeper")
			if err != nil {
				logger.Get().ErrorContext(ctx, "sweeper transition failed",
					zap.String("booking_id", b.ID),
					zap.String("kind", string(step.kind)),
					zap.Error(err),
				)
				continue
			}
			if applied {
				repaired++
			}
		}
		metrics.RecordSweeperRepair(ctx, string(step.kind), repaired)
		total += repaired
	}

	span.SetAttributes(attribute.Int("repaired", total))
	span.SetStatus(codes.Ok, "")
	return total, nil
}

// transition moves the booking from the job's source status to its target
// status once the job is due. It is a no-op for bookings in any other status.
func (s *lifecycleService) transition(ctx context.Context, kind domain.JobKind, bookingID string, now time.Time, origin string) (bool, error) {
	from, to, ok := kind.Transition()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJobKind, kind)
	}

	var changed *domain.Booking
	err := s.tx.RunSerializable(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		b, err := repos.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != from {
			return nil
		}
		if kind == domain.JobPaymentExpiry && (b.IsPaid || b.PaymentMethod == domain.PaymentMethodCash) {
			return nil
		}
		if dueAt(b, kind).After(now) {
			return nil
		}

		applied, err := repos.Bookings.UpdateStatus(ctx, repository.StatusUpdate{
			BookingID: b.ID,
			From:      from,
			To:        to,
			At:        now,
		})
		if err != nil || !applied {
			return err
		}
		b.Status = to
		b.UpdatedAt = now.UTC()
		changed = b
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return false, nil
		}
		return false, err
	}
	if changed == nil {
		return false, nil
	}

	metrics.RecordStatusChange(ctx, string(from), string(to), origin)
	if err := s.events.PublishStatusChanged(ctx, changed, from); err != nil {
		logger.Get().ErrorContext(ctx, "failed to publish status changed event",
			zap.String("booking_id", changed.ID),
			zap.Error(err),
		)
	}
	return true, nil
}

func dueAt(b *domain.Booking, kind domain.JobKind) time.Time {
	switch kind {
	case domain.JobPaymentExpiry:
		return b.PaymentDeadline
	case domain.JobStart:
		return b.StartTime
	default:
		return b.EndTime
	}
}
