package dto

import (
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
)

// TimeslotRequest is one requested hour
type TimeslotRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

// RecurringOptionsRequest asks for a recurring series
type RecurringOptionsRequest struct {
	Frequency       string     `json:"frequency" validate:"required,oneof=WEEKLY MONTHLY"`
	Interval        string     `json:"interval" validate:"required,oneof=ONE_WEEK TWO_WEEKS THREE_WEEKS ONE_MONTH TWO_MONTHS"`
	OccurrenceCount int        `json:"occurrenceCount" validate:"required,min=1"`
	EndsAt          *time.Time `json:"endsAt,omitempty"`
	PaymentMode     string     `json:"paymentMode" validate:"required,oneof=ONE_TIME PER_INSTANCE"`
}

// Options converts the request into domain recurrence options
func (r *RecurringOptionsRequest) Options() domain.RecurringOptions {
	return domain.RecurringOptions{
		Frequency:       domain.Frequency(r.Frequency),
		Interval:        domain.RecurrenceInterval(r.Interval),
		OccurrenceCount: r.OccurrenceCount,
		EndsAt:          r.EndsAt,
		PaymentMode:     domain.PaymentMode(r.PaymentMode),
	}
}

// CreateBookingRequest represents a request to book hours on a ground or combination
type CreateBookingRequest struct {
	FirstName        string                   `json:"firstName" validate:"required,max=100"`
	LastName         string                   `json:"lastName" validate:"required,max=100"`
	Phone            string                   `json:"phone" validate:"required,e164"`
	TargetType       string                   `json:"targetType" validate:"required,oneof=GROUND COMBINATION"`
	Target           string                   `json:"target" validate:"required"`
	Timeslots        []TimeslotRequest        `json:"timeslots" validate:"required,min=1,dive"`
	PaymentMethod    string                   `json:"paymentMethod,omitempty" validate:"omitempty,oneof=CASH CARD TRANSFER WALLET"`
	IsPaid           bool                     `json:"isPaid,omitempty"`
	RecurringOptions *RecurringOptionsRequest `json:"recurringOptions,omitempty"`
	Notes            string                   `json:"notes,omitempty" validate:"max=500"`
}

// Slots returns the requested timeslots as domain slots
func (r *CreateBookingRequest) Slots() []domain.Slot {
	out := make([]domain.Slot, len(r.Timeslots))
	for i, t := range r.Timeslots {
		out[i] = domain.Slot{Start: t.Start, End: t.End}
	}
	return out
}

// ListBookingsQuery filters a venue's bookings
type ListBookingsQuery struct {
	Target string     `form:"target"`
	Type   string     `form:"type" validate:"omitempty,oneof=GROUND COMBINATION"`
	Start  *time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End    *time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
	// Status is a comma separated list
	Status string `form:"status"`
	Page   int    `form:"page" validate:"omitempty,min=1,max=100000"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

// CancelBookingRequest carries an optional cancellation reason
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// UpdateStatusRequest is a staff decision on a pending booking
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=CONFIRMED REJECTED"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID                   string     `json:"id"`
	ReferenceCode        string     `json:"referenceCode"`
	VenueID              string     `json:"venueId"`
	TargetType           string     `json:"targetType"`
	TargetID             string     `json:"targetId"`
	GroundIDs            []string   `json:"groundIds"`
	Status               string     `json:"status"`
	Source               string     `json:"source"`
	StartTime            time.Time  `json:"startTime"`
	EndTime              time.Time  `json:"endTime"`
	TotalPrice           float64    `json:"totalPrice"`
	Currency             string     `json:"currency"`
	PaymentMethod        string     `json:"paymentMethod"`
	IsPaid               bool       `json:"isPaid"`
	PaymentDeadline      time.Time  `json:"paymentDeadline"`
	CancellationDeadline time.Time  `json:"cancellationDeadline"`
	RecurrenceID         *string    `json:"recurrenceId,omitempty"`
	UserID               *string    `json:"userId,omitempty"`
	GuestID              *string    `json:"guestId,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	CancellationFee      float64    `json:"cancellationFee,omitempty"`
	StatusReason         string     `json:"statusReason,omitempty"`
	CancelledAt          *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:                   b.ID,
		ReferenceCode:        b.ReferenceCode,
		VenueID:              b.VenueID,
		TargetType:           string(b.TargetKind),
		TargetID:             b.TargetID,
		GroundIDs:            b.GroundIDs,
		Status:               string(b.Status),
		Source:               string(b.Source),
		StartTime:            b.StartTime,
		EndTime:              b.EndTime,
		TotalPrice:           b.TotalPrice,
		Currency:             b.Currency,
		PaymentMethod:        string(b.PaymentMethod),
		IsPaid:               b.IsPaid,
		PaymentDeadline:      b.PaymentDeadline,
		CancellationDeadline: b.CancellationDeadline,
		RecurrenceID:         b.RecurrenceID,
		UserID:               b.UserID,
		GuestID:              b.GuestID,
		Notes:                b.Notes,
		CancellationFee:      b.CancellationFee,
		StatusReason:         b.StatusReason,
		CancelledAt:          b.CancelledAt,
		CreatedAt:            b.CreatedAt,
	}
}

// FromDomainList converts a slice of bookings
func FromDomainList(bs []*domain.Booking) []*BookingResponse {
	out := make([]*BookingResponse, len(bs))
	for i, b := range bs {
		out[i] = FromDomain(b)
	}
	return out
}

// RecurrenceResponse describes the series a request created
type RecurrenceResponse struct {
	ID              string    `json:"id"`
	Frequency       string    `json:"frequency"`
	Interval        string    `json:"interval"`
	OccurrenceCount int       `json:"occurrenceCount"`
	EndDate         time.Time `json:"endDate"`
	PaymentMode     string    `json:"paymentMode"`
	TotalAmount     float64   `json:"totalAmount"`
}

// CreateBookingResponse lists the bookings created by one request
type CreateBookingResponse struct {
	Bookings   []*BookingResponse  `json:"bookings"`
	Recurrence *RecurrenceResponse `json:"recurrence,omitempty"`
	TotalPrice float64             `json:"totalPrice"`
}

// ListBookingsResponse is one page of bookings
type ListBookingsResponse struct {
	Bookings []*BookingResponse
	Page     int
	Limit    int
	Total    int64
}
