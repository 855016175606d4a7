package service

import (
	"context"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// VenueService manages venue configuration
type VenueService interface {
	// UpdateSchedule replaces the weekly schedule after checking its invariants
	UpdateSchedule(ctx context.Context, caller Caller, venueID string, req *dto.UpdateScheduleRequest) (domain.Schedule, error)
}

type venueService struct {
	venues repository.VenueRepository
}

// NewVenueService creates a new venue service
func NewVenueService(venues repository.VenueRepository) VenueService {
	return &venueService{venues: venues}
}

func (s *venueService) UpdateSchedule(ctx context.Context, caller Caller, venueID string, req *dto.UpdateScheduleRequest) (domain.Schedule, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.venue.update_schedule")
	defer span.End()

	span.SetAttributes(attribute.String("venue_id", venueID))

	if !caller.Staff {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}
	if req == nil {
		return nil, domain.NewValidationError("schedule", "schedule is required")
	}
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	if err := req.Schedule.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.venues.GetByID(ctx, venueID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	schedule := req.Schedule.Normalized()
	if err := s.venues.UpdateSchedule(ctx, venueID, schedule); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return schedule, nil
}
