package domain

import (
	"crypto/rand"
	"fmt"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusInProgress BookingStatus = "IN_PROGRESS"
	BookingStatusDone       BookingStatus = "DONE"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
	BookingStatusExpired    BookingStatus = "EXPIRED"
	BookingStatusRejected   BookingStatus = "REJECTED"
)

// IsValid checks if the status is a known BookingStatus
func (s BookingStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports statuses that no longer occupy their grounds
func (s BookingStatus) IsTerminal() bool {
	for _, t := range InactiveStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// InactiveStatuses are excluded from overlap checks
var InactiveStatuses = []BookingStatus{BookingStatusExpired, BookingStatusCancelled, BookingStatusRejected}

var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired, BookingStatusRejected},
	BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled},
	BookingStatusInProgress: {BookingStatusDone},
	BookingStatusDone:       nil,
	BookingStatusCancelled:  nil,
	BookingStatusExpired:    nil,
	BookingStatusRejected:   nil,
}

// CanTransitionTo reports whether from -> to is allowed by the booking state machine
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// BookingSource records who created a booking
type BookingSource string

const (
	BookingSourceOnline BookingSource = "ONLINE"
	BookingSourceStaff  BookingSource = "STAFF"
)

// PaymentMethod of a booking
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodWallet   PaymentMethod = "WALLET"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodWallet:
		return true
	}
	return false
}

// Booking is a reservation of one contiguous hour range on a set of grounds
type Booking struct {
	ID                   string        `json:"id"`
	ReferenceCode        string        `json:"referenceCode"`
	VenueID              string        `json:"venueId"`
	TargetKind           TargetKind    `json:"targetType"`
	TargetID             string        `json:"targetId"`
	GroundIDs            []string      `json:"groundIds"`
	Status               BookingStatus `json:"status"`
	Source               BookingSource `json:"source"`
	StartTime            time.Time     `json:"startTime"`
	EndTime              time.Time     `json:"endTime"`
	TotalPrice           float64       `json:"totalPrice"`
	Currency             string        `json:"currency"`
	PaymentDeadline      time.Time     `json:"paymentDeadline"`
	CancellationDeadline time.Time     `json:"cancellationDeadline"`
	RecurrenceID         *string       `json:"recurrenceId,omitempty"`
	PaymentMethod        PaymentMethod `json:"paymentMethod"`
	IsPaid               bool          `json:"isPaid"`
	// exactly one of UserID / GuestID is set
	UserID          *string    `json:"userId,omitempty"`
	GuestID         *string    `json:"guestId,omitempty"`
	CreatedBy       string     `json:"createdBy,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CancellationFee float64    `json:"cancellationFee"`
	StatusReason    string     `json:"statusReason,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Hours returns the booked duration in whole hours
func (b *Booking) Hours() int {
	return int(b.EndTime.Sub(b.StartTime) / time.Hour)
}

// Occupies reports whether the booking holds ground g
func (b *Booking) Occupies(g string) bool {
	for _, id := range b.GroundIDs {
		if id == g {
			return true
		}
	}
	return false
}

// ConflictsWith reports an active booking overlapping [start, end) on any of groundIDs
func (b *Booking) ConflictsWith(groundIDs []string, start, end time.Time) bool {
	if b.Status.IsTerminal() || !Overlaps(b.StartTime, b.EndTime, start, end) {
		return false
	}
	for _, g := range groundIDs {
		if b.Occupies(g) {
			return true
		}
	}
	return false
}

// Validate checks the holder and time range invariants
func (b *Booking) Validate() error {
	if (b.UserID == nil) == (b.GuestID == nil) {
		return ErrInvalidHolder
	}
	if !b.EndTime.After(b.StartTime) {
		return NewValidationError("timeslots", "booking must end after it starts")
	}
	if len(b.GroundIDs) == 0 {
		return NewValidationError("target", "booking must occupy at least one ground")
	}
	if b.TotalPrice < 0 {
		return ErrInvalidTotalPrice
	}
	if !b.Status.IsValid() {
		return ErrInvalidBookingStatus
	}
	return nil
}

// CancellationFeeAt is the fee due when cancelling at now: a percentage of the
// total once the cancellation deadline has passed, nothing before.
func (b *Booking) CancellationFeeAt(now time.Time, feePct float64) float64 {
	if !now.After(b.CancellationDeadline) {
		return 0
	}
	return roundCurrency(b.TotalPrice * feePct / 100)
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReferenceCode returns a human-readable booking reference, e.g. BK-7K2M9QXD
func NewReferenceCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return "BK-" + string(buf)
}

func roundCurrency(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
