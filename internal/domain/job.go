package domain

import (
	"fmt"
	"time"
)

// JobKind is a deferred lifecycle transition
type JobKind string

const (
	// JobPaymentExpiry expires a booking still PENDING and unpaid at its payment deadline
	JobPaymentExpiry JobKind = "PAYMENT_EXPIRY"
	// JobStart moves a CONFIRMED booking to IN_PROGRESS at its start time
	JobStart JobKind = "START"
	// JobEnd moves an IN_PROGRESS booking to DONE at its end time
	JobEnd JobKind = "END"
)

// Transition returns the source and target status the job applies
func (k JobKind) Transition() (from, to BookingStatus, ok bool) {
	switch k {
	case JobPaymentExpiry:
		return BookingStatusPending, BookingStatusExpired, true
	case JobStart:
		return BookingStatusConfirmed, BookingStatusInProgress, true
	case JobEnd:
		return BookingStatusInProgress, BookingStatusDone, true
	}
	return "", "", false
}

// LifecycleJob addresses one transition of one booking at fireAt
type LifecycleJob struct {
	ID        string    `json:"id"`
	Kind      JobKind   `json:"kind"`
	BookingID string    `json:"bookingId"`
	FireAt    time.Time `json:"fireAt"`
	Attempts  int       `json:"attempts"`
}

// NewLifecycleJob builds a job whose id is stable for (kind, booking), so
// enqueueing the same transition twice yields a single job.
func NewLifecycleJob(kind JobKind, bookingID string, fireAt time.Time) LifecycleJob {
	return LifecycleJob{
		ID:        fmt.Sprintf("%s:%s", kind, bookingID),
		Kind:      kind,
		BookingID: bookingID,
		FireAt:    fireAt,
	}
}

// LifecycleJobsFor derives the jobs a freshly created booking needs
func LifecycleJobsFor(b *Booking) []LifecycleJob {
	var jobs []LifecycleJob
	if b.Status == BookingStatusPending && !b.IsPaid && b.PaymentMethod != PaymentMethodCash {
		jobs = append(jobs, NewLifecycleJob(JobPaymentExpiry, b.ID, b.PaymentDeadline))
	}
	jobs = append(jobs,
		NewLifecycleJob(JobStart, b.ID, b.StartTime),
		NewLifecycleJob(JobEnd, b.ID, b.EndTime),
	)
	return jobs
}
