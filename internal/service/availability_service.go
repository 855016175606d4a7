package service

import (
	"context"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/metrics"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/settings"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AvailabilityService defines the read side of the booking engine
type AvailabilityService interface {
	// GetConstraints returns the venue with the effective rules of every target
	GetConstraints(ctx context.Context, venueID string) (*dto.ConstraintsResponse, error)

	// GetTimeslots reports availability and price of each hour in the window
	GetTimeslots(ctx context.Context, venueID string, q *dto.TimeslotsQuery) (*dto.TimeslotsResponse, error)
}

// AvailabilityServiceConfig contains configuration for the availability service
type AvailabilityServiceConfig struct {
	WindowHours int
	Currency    string
}

type availabilityService struct {
	repos       *repository.Repositories
	loader      *venueLoader
	windowHours int
	currency    string
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(repos *repository.Repositories, cfg *AvailabilityServiceConfig) AvailabilityService {
	windowHours := 6
	currency := "EGP"
	if cfg != nil {
		if cfg.WindowHours > 0 {
			windowHours = cfg.WindowHours
		}
		if cfg.Currency != "" {
			currency = cfg.Currency
		}
	}
	return &availabilityService{
		repos:       repos,
		loader:      newVenueLoader(repos.Venues),
		windowHours: windowHours,
		currency:    currency,
	}
}

// GetConstraints resolves every ground and combination of the venue
func (s *availabilityService) GetConstraints(ctx context.Context, venueID string) (*dto.ConstraintsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.get_constraints")
	defer span.End()

	span.SetAttributes(attribute.String("venue_id", venueID))

	v, err := s.loader.load(ctx, venueID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &dto.ConstraintsResponse{
		VenueID:           v.ID,
		Name:              v.Name,
		Timezone:          v.Location().String(),
		AutomaticApproval: v.AutomaticApproval,
		Defaults:          v.Defaults,
		Schedule:          v.Schedule.Normalized(),
		Targets:           make([]dto.TargetConstraints, 0, len(v.Grounds)+len(v.Combinations)),
	}

	for _, g := range v.Grounds {
		resp.Targets = append(resp.Targets, dto.TargetConstraints{
			TargetType: string(domain.TargetGround),
			TargetID:   g.ID,
			Name:       g.Name,
			BasePrice:  g.BasePrice,
			GroundIDs:  []string{g.ID},
			Rules:      settings.ResolveGround(g.Overrides, v.Defaults),
		})
	}
	for i := range v.Combinations {
		c := &v.Combinations[i]
		rules, conflicts := settings.ResolveCombinationTarget(v, c)
		tc := dto.TargetConstraints{
			TargetType: string(domain.TargetCombination),
			TargetID:   c.ID,
			Name:       c.Name,
			BasePrice:  c.BasePrice,
			GroundIDs:  c.GroundIDs,
			Rules:      rules,
		}
		if len(conflicts) > 0 {
			tc.Conflicts = conflicts
		}
		resp.Targets = append(resp.Targets, tc)
	}

	span.SetAttributes(attribute.Int("targets", len(resp.Targets)))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// GetTimeslots computes the availability report of one target
func (s *availabilityService) GetTimeslots(ctx context.Context, venueID string, q *dto.TimeslotsQuery) (*dto.TimeslotsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.get_timeslots")
	defer span.End()

	started := time.Now()
	span.SetAttributes(
		attribute.String("venue_id", venueID),
		attribute.String("target_type", q.Type),
		attribute.String("target_id", q.Target),
	)

	v, err := s.loader.load(ctx, venueID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	kind := domain.TargetKind(q.Type)
	target, err := v.ResolveTarget(kind, q.Target)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	rules, _, err := settings.ResolveTarget(v, kind, q.Target)
	if err != nil {
		return nil, err
	}

	loc := v.Location()
	windowStart, err := parseWindowStart(q.Date, loc)
	if err != nil {
		span.SetStatus(codes.Error, "invalid date")
		return nil, err
	}
	windowEnd := windowStart.Add(time.Duration(s.windowHours) * time.Hour)

	exceptions, err := s.repos.Venues.ListExceptions(ctx, v.ID, windowStart, windowEnd)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	bookings, err := s.repos.Bookings.ListActiveByGrounds(ctx, target.GroundIDs, windowStart, windowEnd)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	checker := newSlotChecker(v, target, rules, exceptions, bookings)
	resp := &dto.TimeslotsResponse{
		Metadata: dto.TimeslotsMetadata{
			TargetID:        target.ID,
			TargetType:      string(target.Kind),
			WindowStart:     windowStart,
			WindowHours:     s.windowHours,
			Timezone:        loc.String(),
			MinBookingHours: rules.MinBookingHours,
			MaxBookingHours: rules.MaxBookingHours,
			BasePrice:       target.BasePrice,
			Currency:        s.currency,
		},
		Slots: checker.window(windowStart, s.windowHours),
	}

	metrics.RecordAvailability(ctx, string(kind), time.Since(started).Seconds())
	span.SetStatus(codes.Ok, "")
	return resp, nil
}
