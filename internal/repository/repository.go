package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
)

// VenueRepository loads venues with their layout, schedule and exceptions
type VenueRepository interface {
	// GetByID returns the venue with its grounds and combinations
	GetByID(ctx context.Context, id string) (*domain.Venue, error)

	// UpdateSchedule replaces the weekly schedule of a venue
	UpdateSchedule(ctx context.Context, venueID string, schedule domain.Schedule) error

	// ListExceptions returns the venue's exceptions overlapping [start, end)
	ListExceptions(ctx context.Context, venueID string, start, end time.Time) ([]domain.ScheduleException, error)
}

// BookingFilter narrows a booking listing. Zero fields do not filter.
type BookingFilter struct {
	VenueID    string
	TargetKind domain.TargetKind
	TargetID   string
	Start      *time.Time
	End        *time.Time
	Statuses   []domain.BookingStatus
	Limit      int
	Offset     int
}

// StatusUpdate is a conditional status change. It applies only while the
// booking still holds From.
type StatusUpdate struct {
	BookingID       string
	From            domain.BookingStatus
	To              domain.BookingStatus
	Reason          string
	CancellationFee float64
	At              time.Time
}

// DueField selects the timestamp ListDue compares against
type DueField string

const (
	DuePaymentDeadline DueField = "payment_deadline"
	DueStartTime       DueField = "start_time"
	DueEndTime         DueField = "end_time"
)

// BookingRepository persists bookings and recurrence groups
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error

	CreateRecurrenceGroup(ctx context.Context, group *domain.RecurrenceGroup) error

	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// ListActiveByGrounds returns bookings not in an inactive status that
	// occupy any of groundIDs and overlap [start, end)
	ListActiveByGrounds(ctx context.Context, groundIDs []string, start, end time.Time) ([]*domain.Booking, error)

	// List returns one page of bookings and the total matching count
	List(ctx context.Context, filter BookingFilter) ([]*domain.Booking, int64, error)

	// UpdateStatus applies u and reports false when the booking no longer
	// holds u.From
	UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error)

	// ListDue returns bookings in status whose field is at or before now
	ListDue(ctx context.Context, status domain.BookingStatus, field DueField, now time.Time, limit int) ([]*domain.Booking, error)
}

// GuestRepository stores venue-scoped guests
type GuestRepository interface {
	// FindOrCreate returns the guest for (venue, phone), creating it from g if absent
	FindOrCreate(ctx context.Context, g *domain.Guest) (*domain.Guest, error)
}

// UserDirectory looks up registered accounts
type UserDirectory interface {
	FindUserIDByPhone(ctx context.Context, phone string) (string, bool, error)
}

// Repositories groups the repositories sharing one connection or transaction
type Repositories struct {
	Venues   VenueRepository
	Bookings BookingRepository
	Guests   GuestRepository
	Users    UserDirectory
}

// Transactor runs fn inside a serializable transaction. Any error returned by
// fn rolls the transaction back. Aborts caused by concurrent transactions are
// reported as domain.ErrRetryableConflict, deadline overruns as
// domain.ErrTransactionTimeout.
type Transactor interface {
	RunSerializable(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}

// JobQueue is a delayed queue of lifecycle jobs with at-least-once delivery
type JobQueue interface {
	// Enqueue schedules jobs; re-enqueueing an id reschedules it
	Enqueue(ctx context.Context, jobs ...domain.LifecycleJob) error

	// Claim leases up to limit jobs due at now. Unacknowledged leases return
	// to the queue after the visibility timeout.
	Claim(ctx context.Context, now time.Time, limit int) ([]domain.LifecycleJob, error)

	// Ack removes a processed job
	Ack(ctx context.Context, jobID string) error

	// Retry returns a claimed job to the queue to fire again at at
	Retry(ctx context.Context, job domain.LifecycleJob, at time.Time) error

	// Reap returns expired leases to the queue and reports how many moved
	Reap(ctx context.Context, now time.Time) (int, error)

	// Len reports the number of pending (unclaimed) jobs
	Len(ctx context.Context) (int64, error)
}
