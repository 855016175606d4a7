package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors
var (
	// Not found
	ErrVenueNotFound       = errors.New("venue not found")
	ErrGroundNotFound      = errors.New("ground not found")
	ErrCombinationNotFound = errors.New("combination not found")
	ErrBookingNotFound     = errors.New("booking not found")

	// Validation
	ErrValidation           = errors.New("validation failed")
	ErrInvalidHolder        = errors.New("booking must belong to exactly one of user or guest")
	ErrInvalidTotalPrice    = errors.New("total price cannot be negative")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrVenueArchived        = errors.New("venue is archived")

	// Conflicts
	ErrSlotUnavailable         = errors.New("slot not available")
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// Authorization
	ErrForbidden = errors.New("operation not permitted for this caller")

	// Retryable: the request may be repeated unchanged
	ErrRetryableConflict  = errors.New("booking conflicted with a concurrent request")
	ErrTransactionTimeout = errors.New("booking transaction timed out")
)

// ValidationError reports the first failing field of a request
type ValidationError struct {
	Path    string
	Message string
}

func NewValidationError(path, message string) *ValidationError {
	return &ValidationError{Path: path, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SlotConflict is the reason one requested hour cannot be booked
type SlotConflict struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

// UnavailableError lists every requested slot that failed its checks
type UnavailableError struct {
	Slots []SlotConflict
}

func (e *UnavailableError) Error() string {
	reasons := make([]string, 0, len(e.Slots))
	for _, s := range e.Slots {
		reasons = append(reasons, fmt.Sprintf("%s: %s", s.Start.Format(time.RFC3339), s.Reason))
	}
	return fmt.Sprintf("%s (%s)", ErrSlotUnavailable, strings.Join(reasons, "; "))
}

func (e *UnavailableError) Unwrap() error { return ErrSlotUnavailable }

// TransitionError reports a status change the state machine forbids
type TransitionError struct {
	From BookingStatus
	To   BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidStatusTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrVenueNotFound) ||
		errors.Is(err, ErrGroundNotFound) ||
		errors.Is(err, ErrCombinationNotFound) ||
		errors.Is(err, ErrBookingNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidHolder) ||
		errors.Is(err, ErrInvalidTotalPrice) ||
		errors.Is(err, ErrInvalidBookingStatus) ||
		errors.Is(err, ErrVenueArchived)
}

// IsUnavailableError checks if a requested slot failed availability checks
func IsUnavailableError(err error) bool {
	return errors.Is(err, ErrSlotUnavailable)
}

// IsConflictError checks if the error is a non-retryable conflict
func IsConflictError(err error) bool {
	return IsUnavailableError(err) || errors.Is(err, ErrInvalidStatusTransition)
}

// IsRetryableConflict checks if the request lost a race or ran out of time
func IsRetryableConflict(err error) bool {
	return errors.Is(err, ErrRetryableConflict) || errors.Is(err, ErrTransactionTimeout)
}
