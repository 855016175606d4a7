package service

import "github.com/prohmpiriya/pitch-booking/internal/domain"

// StatusInput are the facts the initial status of a booking depends on
type StatusInput struct {
	RegisteredUser    bool
	AutomaticApproval bool
	Paid              bool
	Cash              bool
	StaffCreated      bool
}

// StatusPolicy decides the status a new booking starts in
type StatusPolicy func(in StatusInput) domain.BookingStatus

// DefaultStatusPolicy confirms immediately when a registered user books at a
// venue with automatic approval and the booking is paid, paid in cash, or
// entered by staff. Everything else waits for payment or manual approval.
func DefaultStatusPolicy(in StatusInput) domain.BookingStatus {
	if in.RegisteredUser && in.AutomaticApproval && (in.Paid || in.Cash || in.StaffCreated) {
		return domain.BookingStatusConfirmed
	}
	return domain.BookingStatusPending
}
