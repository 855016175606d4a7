package domain

import "time"

// BookingEventType names a booking lifecycle event
type BookingEventType string

const (
	BookingEventCreated       BookingEventType = "booking.created"
	BookingEventStatusChanged BookingEventType = "booking.status_changed"
)

// BookingEvent is published after a booking is created or changes status
type BookingEvent struct {
	EventID        string           `json:"eventId"`
	EventType      BookingEventType `json:"eventType"`
	OccurredAt     time.Time        `json:"occurredAt"`
	BookingID      string           `json:"bookingId"`
	ReferenceCode  string           `json:"referenceCode"`
	VenueID        string           `json:"venueId"`
	TargetKind     TargetKind       `json:"targetType"`
	TargetID       string           `json:"targetId"`
	Status         BookingStatus    `json:"status"`
	PreviousStatus BookingStatus    `json:"previousStatus,omitempty"`
	StartTime      time.Time        `json:"startTime"`
	EndTime        time.Time        `json:"endTime"`
	TotalPrice     float64          `json:"totalPrice"`
	RecurrenceID   *string          `json:"recurrenceId,omitempty"`
}

// NewBookingEvent snapshots b into an event
func NewBookingEvent(eventType BookingEventType, b *Booking, eventID string, previous BookingStatus) *BookingEvent {
	return &BookingEvent{
		EventID:        eventID,
		EventType:      eventType,
		OccurredAt:     time.Now().UTC(),
		BookingID:      b.ID,
		ReferenceCode:  b.ReferenceCode,
		VenueID:        b.VenueID,
		TargetKind:     b.TargetKind,
		TargetID:       b.TargetID,
		Status:         b.Status,
		PreviousStatus: previous,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		TotalPrice:     b.TotalPrice,
		RecurrenceID:   b.RecurrenceID,
	}
}

// Key partitions events by booking
func (e *BookingEvent) Key() string {
	return e.BookingID
}
