package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/service"
	"github.com/prohmpiriya/pitch-booking/pkg/response"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PitchHandler serves venue configuration and availability
type PitchHandler struct {
	availability service.AvailabilityService
	venues       service.VenueService
}

// NewPitchHandler creates a new pitch handler
func NewPitchHandler(availability service.AvailabilityService, venues service.VenueService) *PitchHandler {
	return &PitchHandler{availability: availability, venues: venues}
}

// GetConstraints handles GET /pitch/:id/constraints
func (h *PitchHandler) GetConstraints(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.pitch.get_constraints")
	defer span.End()

	venueID := c.Param("id")
	span.SetAttributes(attribute.String("venue_id", venueID))

	result, err := h.availability.GetConstraints(ctx, venueID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, "constraints retrieved", result)
}

// GetTimeslots handles GET /pitch/:id/timeslots?target&type&date
func (h *PitchHandler) GetTimeslots(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.pitch.get_timeslots")
	defer span.End()

	var q dto.TimeslotsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		bindError(c, err)
		return
	}
	if err := dto.Validate(&q); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		handleError(c, err)
		return
	}

	venueID := c.Param("id")
	span.SetAttributes(
		attribute.String("venue_id", venueID),
		attribute.String("target_id", q.Target),
	)

	result, err := h.availability.GetTimeslots(ctx, venueID, &q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, "timeslots retrieved", result)
}

// UpdateSchedule handles PUT /pitch/:id/schedule
func (h *PitchHandler) UpdateSchedule(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.pitch.update_schedule")
	defer span.End()

	var req dto.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	schedule, err := h.venues.UpdateSchedule(ctx, callerFrom(c), c.Param("id"), &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, "schedule updated", schedule)
}
