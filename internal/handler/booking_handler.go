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

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	reservations service.ReservationService
	bookings     service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(reservations service.ReservationService, bookings service.BookingService) *BookingHandler {
	return &BookingHandler{reservations: reservations, bookings: bookings}
}

// CreateBooking handles POST /pitch/:id/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	caller := callerFrom(c)
	venueID := c.Param("id")
	span.SetAttributes(
		attribute.String("venue_id", venueID),
		attribute.String("caller", caller.UserID),
		attribute.Bool("staff", caller.Staff),
	)

	result, err := h.reservations.CreateBooking(ctx, caller, venueID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("bookings_created", len(result.Bookings)))
	span.SetStatus(codes.Ok, "")
	response.Created(c, "booking created", result)
}

// ListBookings handles GET /pitch/:id/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()

	var q dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		bindError(c, err)
		return
	}

	venueID := c.Param("id")
	result, err := h.bookings.ListBookings(ctx, venueID, &q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.List(c, "bookings retrieved",
		gin.H{"venueId": venueID},
		response.NewPagination(result.Page, result.Limit, result.Total),
		result.Bookings,
	)
}

// GetBooking handles GET /pitch/:id/bookings/:bookingId
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()

	result, err := h.bookings.GetBooking(ctx, c.Param("id"), c.Param("bookingId"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, "booking retrieved", result)
}

// CancelBooking handles POST /pitch/:id/bookings/:bookingId/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()

	var req dto.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			span.SetStatus(codes.Error, "invalid request")
			bindError(c, err)
			return
		}
	}

	result, err := h.bookings.CancelBooking(ctx, callerFrom(c), c.Param("id"), c.Param("bookingId"), &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Float64("cancellation_fee", result.CancellationFee))
	span.SetStatus(codes.Ok, "")
	response.Success(c, "booking cancelled", result)
}

// UpdateStatus handles PATCH /pitch/:id/bookings/:bookingId/status
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.update_status")
	defer span.End()

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	result, err := h.bookings.UpdateStatus(ctx, callerFrom(c), c.Param("id"), c.Param("bookingId"), &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, "booking status updated", result)
}
