package service

import (
	"context"
	"strings"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/metrics"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/settings"
	"github.com/prohmpiriya/pitch-booking/pkg/logger"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// BookingService defines the interface for managing existing bookings
type BookingService interface {
	// GetBooking retrieves a booking of the venue by ID
	GetBooking(ctx context.Context, venueID, bookingID string) (*dto.BookingResponse, error)

	// ListBookings returns one page of the venue's bookings
	ListBookings(ctx context.Context, venueID string, q *dto.ListBookingsQuery) (*dto.ListBookingsResponse, error)

	// CancelBooking cancels a pending or confirmed booking, charging the
	// cancellation fee once the cancellation deadline has passed
	CancelBooking(ctx context.Context, caller Caller, venueID, bookingID string, req *dto.CancelBookingRequest) (*dto.BookingResponse, error)

	// UpdateStatus records a staff decision on a pending booking
	UpdateStatus(ctx context.Context, caller Caller, venueID, bookingID string, req *dto.UpdateStatusRequest) (*dto.BookingResponse, error)
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	DefaultPageSize int
	Now             func() time.Time
}

type bookingService struct {
	repos    *repository.Repositories
	tx       repository.Transactor
	events   EventPublisher
	pageSize int
	now      func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	repos *repository.Repositories,
	tx repository.Transactor,
	events EventPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	pageSize := 20
	now := time.Now
	if cfg != nil {
		if cfg.DefaultPageSize > 0 {
			pageSize = cfg.DefaultPageSize
		}
		if cfg.Now != nil {
			now = cfg.Now
		}
	}
	if events == nil {
		events = NewNoOpEventPublisher()
	}
	return &bookingService{
		repos:    repos,
		tx:       tx,
		events:   events,
		pageSize: pageSize,
		now:      now,
	}
}

// GetBooking retrieves a booking by ID
func (s *bookingService) GetBooking(ctx context.Context, venueID, bookingID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get_booking")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	b, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if b.VenueID != venueID {
		return nil, domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(b), nil
}

// ListBookings returns the venue's bookings, newest first
func (s *bookingService) ListBookings(ctx context.Context, venueID string, q *dto.ListBookingsQuery) (*dto.ListBookingsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_bookings")
	defer span.End()

	if q == nil {
		q = &dto.ListBookingsQuery{}
	}
	if err := dto.Validate(q); err != nil {
		return nil, err
	}
	statuses, err := parseStatuses(q.Status)
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.Venues.GetByID(ctx, venueID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = s.pageSize
	}

	bookings, total, err := s.repos.Bookings.List(ctx, repository.BookingFilter{
		VenueID:    venueID,
		TargetKind: domain.TargetKind(q.Type),
		TargetID:   q.Target,
		Start:      q.Start,
		End:        q.End,
		Statuses:   statuses,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("venue_id", venueID),
		attribute.Int64("total", total),
	)
	span.SetStatus(codes.Ok, "")
	return &dto.ListBookingsResponse{
		Bookings: dto.FromDomainList(bookings),
		Page:     page,
		Limit:    limit,
		Total:    total,
	}, nil
}

// CancelBooking cancels a booking on behalf of its holder or venue staff
func (s *bookingService) CancelBooking(ctx context.Context, caller Caller, venueID, bookingID string, req *dto.CancelBookingRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel_booking")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Bool("staff", caller.Staff),
	)

	if req == nil {
		req = &dto.CancelBookingRequest{}
	}
	if err := dto.Validate(req); err != nil {
		return nil, err
	}

	var (
		cancelled *domain.Booking
		previous  domain.BookingStatus
	)
	err := s.tx.RunSerializable(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		now := s.now()

		b, err := repos.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.VenueID != venueID {
			return domain.ErrBookingNotFound
		}
		if !canManage(caller, b) {
			return domain.ErrForbidden
		}
		if !b.Status.CanTransitionTo(domain.BookingStatusCancelled) {
			return &domain.TransitionError{From: b.Status, To: domain.BookingStatusCancelled}
		}

		v, err := repos.Venues.GetByID(ctx, b.VenueID)
		if err != nil {
			return err
		}
		rules, _, err := settings.ResolveTarget(v, b.TargetKind, b.TargetID)
		if err != nil {
			return err
		}
		fee := b.CancellationFeeAt(now, rules.CancellationFeePct)

		applied, err := repos.Bookings.UpdateStatus(ctx, repository.StatusUpdate{
			BookingID:       b.ID,
			From:            b.Status,
			To:              domain.BookingStatusCancelled,
			Reason:          req.Reason,
			CancellationFee: fee,
			At:              now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return &domain.TransitionError{From: b.Status, To: domain.BookingStatusCancelled}
		}

		previous = b.Status
		at := now.UTC()
		b.Status = domain.BookingStatusCancelled
		b.StatusReason = req.Reason
		b.CancellationFee = fee
		b.CancelledAt = &at
		b.UpdatedAt = at
		cancelled = b
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	metrics.RecordCancellation(ctx, cancelled.CancellationFee > 0)
	metrics.RecordStatusChange(ctx, string(previous), string(cancelled.Status), "api")
	s.publishStatusChanged(ctx, cancelled, previous)

	span.SetAttributes(attribute.Float64("cancellation_fee", cancelled.CancellationFee))
	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(cancelled), nil
}

// UpdateStatus approves or rejects a pending booking
func (s *bookingService) UpdateStatus(ctx context.Context, caller Caller, venueID, bookingID string, req *dto.UpdateStatusRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.update_status")
	defer span.End()

	if !caller.Staff {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}
	if req == nil {
		return nil, domain.NewValidationError("status", "status is required")
	}
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	to := domain.BookingStatus(req.Status)
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("to", req.Status),
	)

	var (
		updated  *domain.Booking
		previous domain.BookingStatus
	)
	err := s.tx.RunSerializable(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		now := s.now()

		b, err := repos.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.VenueID != venueID {
			return domain.ErrBookingNotFound
		}
		if b.Status != domain.BookingStatusPending || !b.Status.CanTransitionTo(to) {
			return &domain.TransitionError{From: b.Status, To: to}
		}

		applied, err := repos.Bookings.UpdateStatus(ctx, repository.StatusUpdate{
			BookingID: b.ID,
			From:      b.Status,
			To:        to,
			Reason:    req.Reason,
			At:        now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return &domain.TransitionError{From: b.Status, To: to}
		}

		previous = b.Status
		b.Status = to
		b.StatusReason = req.Reason
		b.UpdatedAt = now.UTC()
		updated = b
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	metrics.RecordStatusChange(ctx, string(previous), string(to), "api")
	s.publishStatusChanged(ctx, updated, previous)

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(updated), nil
}

func (s *bookingService) publishStatusChanged(ctx context.Context, b *domain.Booking, previous domain.BookingStatus) {
	if err := s.events.PublishStatusChanged(ctx, b, previous); err != nil {
		logger.Get().ErrorContext(ctx, "failed to publish status changed event",
			zap.String("booking_id", b.ID),
			zap.String("status", string(b.Status)),
			zap.Error(err),
		)
	}
}

// canManage reports whether caller may act on b: venue staff, or the
// registered user holding it
func canManage(caller Caller, b *domain.Booking) bool {
	if caller.Staff {
		return true
	}
	return caller.UserID != "" && b.UserID != nil && *b.UserID == caller.UserID
}

func parseStatuses(raw string) ([]domain.BookingStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []domain.BookingStatus
	for _, part := range strings.Split(raw, ",") {
		st := domain.BookingStatus(strings.ToUpper(strings.TrimSpace(part)))
		if st == "" {
			continue
		}
		if !st.IsValid() {
			return nil, domain.NewValidationError("status", "unknown booking status "+string(st))
		}
		out = append(out, st)
	}
	return out, nil
}
