package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/metrics"
	"github.com/prohmpiriya/pitch-booking/internal/pricing"
	"github.com/prohmpiriya/pitch-booking/internal/recurrence"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/settings"
	"github.com/prohmpiriya/pitch-booking/pkg/logger"
	"github.com/prohmpiriya/pitch-booking/pkg/retry"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Caller is the authenticated identity forwarded by the gateway. An empty
// UserID is an anonymous caller.
type Caller struct {
	UserID string
	Staff  bool
}

// ReservationService commits new bookings
type ReservationService interface {
	// CreateBooking books the requested hours, once or as a recurring series.
	// Either every booking of the request is created or none is.
	CreateBooking(ctx context.Context, caller Caller, venueID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)
}

// ReservationServiceConfig contains configuration for the reservation service
type ReservationServiceConfig struct {
	Currency string
	// MaxRecurrence caps the occurrences of one series
	MaxRecurrence int
	// TxMaxRetries re-runs the transaction after a serialization conflict;
	// 0 surfaces the conflict to the caller
	TxMaxRetries   int
	TxRetryBackoff time.Duration
	StatusPolicy   StatusPolicy
	Now            func() time.Time
}

type reservationService struct {
	repos         *repository.Repositories
	tx            repository.Transactor
	jobs          repository.JobQueue
	events        EventPublisher
	policy        StatusPolicy
	retrier       *retry.Retrier
	currency      string
	maxRecurrence int
	now           func() time.Time
}

// NewReservationService creates a new reservation service
func NewReservationService(
	repos *repository.Repositories,
	tx repository.Transactor,
	jobs repository.JobQueue,
	events EventPublisher,
	cfg *ReservationServiceConfig,
) ReservationService {
	s := &reservationService{
		repos:         repos,
		tx:            tx,
		jobs:          jobs,
		events:        events,
		policy:        DefaultStatusPolicy,
		currency:      "EGP",
		maxRecurrence: 52,
		now:           time.Now,
	}
	if cfg != nil {
		if cfg.Currency != "" {
			s.currency = cfg.Currency
		}
		if cfg.MaxRecurrence > 0 {
			s.maxRecurrence = cfg.MaxRecurrence
		}
		if cfg.StatusPolicy != nil {
			s.policy = cfg.StatusPolicy
		}
		if cfg.Now != nil {
			s.now = cfg.Now
		}
		if cfg.TxMaxRetries > 0 {
			s.retrier = retry.New(&retry.Config{
				MaxRetries:      cfg.TxMaxRetries,
				InitialInterval: cfg.TxRetryBackoff,
				MaxInterval:     time.Second,
				Multiplier:      2.0,
				JitterFactor:    0.2,
			})
		}
	}
	if s.events == nil {
		s.events = NewNoOpEventPublisher()
	}
	return s
}

// creation is the outcome of one committed booking transaction
type creation struct {
	bookings []*domain.Booking
	group    *domain.RecurrenceGroup
	total    float64
}

// CreateBooking validates, checks and commits a booking request
func (s *reservationService) CreateBooking(ctx context.Context, caller Caller, venueID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.create_booking")
	defer span.End()

	if req == nil {
		return nil, domain.NewValidationError("", "request body is required")
	}
	if err := dto.Validate(req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("venue_id", venueID),
		attribute.String("target_type", req.TargetType),
		attribute.String("target_id", req.Target),
		attribute.Int("timeslots", len(req.Timeslots)),
		attribute.Bool("recurring", req.RecurringOptions != nil),
		attribute.Bool("staff", caller.Staff),
	)

	if _, err := s.repos.Venues.GetByID(ctx, venueID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	holder, err := s.resolveHolder(ctx, caller, venueID, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	started := time.Now()
	var result *creation
	attempt := func(ctx context.Context) error {
		var err error
		result, err = s.commit(ctx, caller, venueID, holder, req)
		return err
	}

	if s.retrier == nil {
		err = attempt(ctx)
	} else {
		res := s.retrier.Do(ctx, func(ctx context.Context) error {
			err := attempt(ctx)
			if err != nil && !domain.IsRetryableConflict(err) {
				return retry.Permanent(err)
			}
			return err
		})
		err = res.Err
		if res.LastError != nil {
			err = res.LastError
		}
		span.SetAttributes(attribute.Int("tx_attempts", res.Attempts))
	}
	txSeconds := time.Since(started).Seconds()

	if err != nil {
		metrics.RecordBookingRejected(ctx, rejectionReason(err), txSeconds)
		telemetry.RecordError(span, err)
		return nil, err
	}

	first := result.bookings[0]
	metrics.RecordBookingCreated(ctx, string(first.TargetKind), string(first.Status), len(result.bookings), txSeconds)
	s.afterCommit(ctx, result.bookings)

	resp := &dto.CreateBookingResponse{
		Bookings:   dto.FromDomainList(result.bookings),
		TotalPrice: result.total,
	}
	if g := result.group; g != nil {
		resp.Recurrence = &dto.RecurrenceResponse{
			ID:              g.ID,
			Frequency:       string(g.Frequency),
			Interval:        string(g.Interval),
			OccurrenceCount: g.OccurrenceCount,
			EndDate:         g.EndDate,
			PaymentMode:     string(g.PaymentMode),
			TotalAmount:     g.TotalAmount,
		}
	}

	span.SetAttributes(
		attribute.Int("bookings_created", len(result.bookings)),
		attribute.String("status", string(first.Status)),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// resolveHolder decides who the booking belongs to. A non-staff caller books
// for themselves; staff and anonymous requests resolve the phone number to a
// registered user or a venue guest.
func (s *reservationService) resolveHolder(ctx context.Context, caller Caller, venueID string, req *dto.CreateBookingRequest) (domain.Holder, error) {
	if caller.UserID != "" && !caller.Staff {
		id := caller.UserID
		return domain.Holder{UserID: &id}, nil
	}

	if s.repos.Users != nil {
		id, ok, err := s.repos.Users.FindUserIDByPhone(ctx, req.Phone)
		if err != nil {
			return domain.Holder{}, err
		}
		if ok {
			return domain.Holder{UserID: &id}, nil
		}
	}

	guest, err := s.repos.Guests.FindOrCreate(ctx, &domain.Guest{
		ID:        uuid.New().String(),
		VenueID:   venueID,
		Phone:     req.Phone,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Holder{}, fmt.Errorf("failed to resolve guest: %w", err)
	}
	return domain.Holder{GuestID: &guest.ID}, nil
}

// commit runs one serializable attempt of the booking transaction
func (s *reservationService) commit(ctx context.Context, caller Caller, venueID string, holder domain.Holder, req *dto.CreateBookingRequest) (*creation, error) {
	var out *creation
	err := s.tx.RunSerializable(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		now := s.now()

		v, err := repos.Venues.GetByID(ctx, venueID)
		if err != nil {
			return err
		}
		if v.IsArchived() {
			return domain.ErrVenueArchived
		}

		kind := domain.TargetKind(req.TargetType)
		target, err := v.ResolveTarget(kind, req.Target)
		if err != nil {
			return err
		}
		rules, _, err := settings.ResolveTarget(v, kind, req.Target)
		if err != nil {
			return err
		}

		loc := v.Location()
		source := domain.BookingSourceOnline
		if caller.Staff {
			source = domain.BookingSourceStaff
		}

		template, err := normalizeSlots(req.Slots(), loc)
		if err != nil {
			return err
		}
		if err := checkBookingRules(template, rules, source, now); err != nil {
			return err
		}

		occurrences, params, err := s.expand(template, loc, req.RecurringOptions)
		if err != nil {
			return err
		}

		var conflicts []domain.SlotConflict
		prices := make([]float64, len(occurrences))
		for i, slots := range occurrences {
			start, end := slots[0].Start, slots[len(slots)-1].End
			exceptions, err := repos.Venues.ListExceptions(ctx, v.ID, start, end)
			if err != nil {
				return err
			}
			existing, err := repos.Bookings.ListActiveByGrounds(ctx, target.GroundIDs, start, end)
			if err != nil {
				return err
			}
			checker := newSlotChecker(v, target, rules, exceptions, existing)
			conflicts = append(conflicts, checker.conflicts(slots)...)
			prices[i] = pricing.RangePrice(target.BasePrice, slots, v.Schedule, rules, loc)
		}
		if len(conflicts) > 0 {
			return &domain.UnavailableError{Slots: conflicts}
		}

		mode := domain.PaymentModePerInstance
		if req.RecurringOptions != nil {
			mode = domain.PaymentMode(req.RecurringOptions.PaymentMode)
		}
		quote := pricing.SeriesPrice(mode, prices)

		result := &creation{total: quote.Total}
		var recurrenceID *string
		if params != nil {
			endDate, err := recurrence.CalculateEndDate(*params)
			if err != nil {
				return err
			}
			result.group = &domain.RecurrenceGroup{
				ID:              uuid.New().String(),
				VenueID:         v.ID,
				Frequency:       params.Frequency,
				Interval:        params.Interval,
				OccurrenceCount: len(occurrences),
				EndDate:         endDate,
				PaymentMode:     mode,
				TotalAmount:     quote.Total,
				CreatedAt:       now.UTC(),
			}
			if err := repos.Bookings.CreateRecurrenceGroup(ctx, result.group); err != nil {
				return err
			}
			recurrenceID = &result.group.ID
		}

		method := domain.PaymentMethod(req.PaymentMethod)
		if method == "" {
			method = domain.PaymentMethodCash
		}
		// only staff can record a payment taken at the desk
		paid := req.IsPaid && source == domain.BookingSourceStaff
		status := s.policy(StatusInput{
			RegisteredUser:    holder.IsRegistered(),
			AutomaticApproval: v.AutomaticApproval,
			Paid:              paid,
			Cash:              method == domain.PaymentMethodCash,
			StaffCreated:      source == domain.BookingSourceStaff,
		})

		for i, slots := range occurrences {
			start := slots[0].Start.UTC()
			end := slots[len(slots)-1].End.UTC()
			b := &domain.Booking{
				ID:                   uuid.New().String(),
				ReferenceCode:        domain.NewReferenceCode(),
				VenueID:              v.ID,
				TargetKind:           target.Kind,
				TargetID:             target.ID,
				GroundIDs:            append([]string(nil), target.GroundIDs...),
				Status:               status,
				Source:               source,
				StartTime:            start,
				EndTime:              end,
				TotalPrice:           quote.PerOccurrence[i],
				Currency:             s.currency,
				PaymentDeadline:      paymentDeadline(start, rules, now),
				CancellationDeadline: start.Add(-time.Duration(rules.CancellationGraceHours) * time.Hour),
				RecurrenceID:         recurrenceID,
				PaymentMethod:        method,
				IsPaid:               paid,
				UserID:               holder.UserID,
				GuestID:              holder.GuestID,
				CreatedBy:            caller.UserID,
				Notes:                req.Notes,
				CreatedAt:            now.UTC(),
				UpdatedAt:            now.UTC(),
			}
			if err := b.Validate(); err != nil {
				return err
			}
			if err := repos.Bookings.Create(ctx, b); err != nil {
				return err
			}
			result.bookings = append(result.bookings, b)
		}

		out = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// expand returns the slots of every occurrence. A single booking is one
// occurrence and no recurrence parameters.
func (s *reservationService) expand(template []domain.Slot, loc *time.Location, opts *dto.RecurringOptionsRequest) ([][]domain.Slot, *recurrence.Params, error) {
	if opts == nil {
		return [][]domain.Slot{template}, nil, nil
	}
	if opts.OccurrenceCount > s.maxRecurrence {
		return nil, nil, domain.NewValidationError("recurringOptions.occurrenceCount",
			fmt.Sprintf("occurrenceCount must not exceed %d", s.maxRecurrence))
	}

	first := template[0].Start.In(loc)
	o := opts.Options()
	params := &recurrence.Params{
		Start:     time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc),
		Frequency: o.Frequency,
		Interval:  o.Interval,
		Count:     o.OccurrenceCount,
		EndsAt:    o.EndsAt,
	}
	dates, err := recurrence.ExpandDates(*params)
	if err != nil {
		return nil, nil, err
	}

	out := make([][]domain.Slot, len(dates))
	for i, d := range dates {
		out[i] = recurrence.MapTemplateToDate(template, d)
	}
	return out, params, nil
}

// normalizeSlots sorts the requested hours and checks that each is one whole
// hour on the hour in loc and that together they form one contiguous range
func normalizeSlots(in []domain.Slot, loc *time.Location) ([]domain.Slot, error) {
	slots := append([]domain.Slot(nil), in...)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

	for i, s := range slots {
		path := fmt.Sprintf("timeslots[%d]", i)
		if s.End.Sub(s.Start) != time.Hour {
			return nil, domain.NewValidationError(path, "each timeslot must be exactly one hour")
		}
		local := s.Start.In(loc)
		if local.Minute() != 0 || local.Second() != 0 || local.Nanosecond() != 0 {
			return nil, domain.NewValidationError(path, "timeslots must start on the hour")
		}
		if i > 0 && !s.Start.Equal(slots[i-1].End) {
			return nil, domain.NewValidationError("timeslots", "timeslots must be contiguous")
		}
	}
	return slots, nil
}

// checkBookingRules enforces duration limits and lead time on the first
// occurrence; later occurrences only lie further in the future
func checkBookingRules(slots []domain.Slot, rules domain.RuleSet, source domain.BookingSource, now time.Time) error {
	hours := len(slots)
	if hours < rules.MinBookingHours {
		return domain.NewValidationError("timeslots", fmt.Sprintf("booking must be at least %d hour(s)", rules.MinBookingHours))
	}
	if hours > rules.MaxBookingHours {
		return domain.NewValidationError("timeslots", fmt.Sprintf("booking must not exceed %d hour(s)", rules.MaxBookingHours))
	}

	start := slots[0].Start
	if start.Before(now) {
		return domain.NewValidationError("timeslots", "cannot book a slot in the past")
	}
	if source == domain.BookingSourceOnline {
		cutoff := now.Add(time.Duration(rules.AdvanceBookingHours) * time.Hour)
		if start.Before(cutoff) {
			return domain.NewValidationError("timeslots",
				fmt.Sprintf("online bookings must be made at least %d hour(s) in advance", rules.AdvanceBookingHours))
		}
	}
	return nil
}

// paymentDeadline falls paymentDeadlineHours before start. A deadline that
// has already passed moves to the start of the booking.
func paymentDeadline(start time.Time, rules domain.RuleSet, now time.Time) time.Time {
	d := start.Add(-time.Duration(rules.PaymentDeadlineHours) * time.Hour)
	if d.Before(now) {
		return start
	}
	return d
}

// afterCommit schedules lifecycle jobs and publishes events. Failures are
// logged only; the sweeper re-drives transitions whose jobs were lost.
func (s *reservationService) afterCommit(ctx context.Context, bookings []*domain.Booking) {
	if s.jobs != nil {
		var jobs []domain.LifecycleJob
		for _, b := range bookings {
			jobs = append(jobs, domain.LifecycleJobsFor(b)...)
		}
		if err := s.jobs.Enqueue(ctx, jobs...); err != nil {
			logger.Get().ErrorContext(ctx, "failed to enqueue lifecycle jobs",
				zap.Int("jobs", len(jobs)),
				zap.Error(err),
			)
		}
	}

	for _, b := range bookings {
		if err := s.events.PublishBookingCreated(ctx, b); err != nil {
			logger.Get().ErrorContext(ctx, "failed to publish booking created event",
				zap.String("booking_id", b.ID),
				zap.Error(err),
			)
		}
	}
}

func rejectionReason(err error) string {
	switch {
	case domain.IsUnavailableError(err):
		return "unavailable"
	case domain.IsValidationError(err):
		return "validation"
	case domain.IsNotFoundError(err):
		return "not_found"
	case errors.Is(err, domain.ErrTransactionTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrRetryableConflict):
		return "retryable_conflict"
	}
	return "error"
}
