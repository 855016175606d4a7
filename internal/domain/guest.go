package domain

import "time"

// Guest is a venue-scoped customer without a registered account, keyed by (venue, phone)
type Guest struct {
	ID        string    `json:"id"`
	VenueID   string    `json:"venueId"`
	Phone     string    `json:"phone"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}

// Holder identifies who a booking belongs to
type Holder struct {
	UserID  *string
	GuestID *string
}

// IsRegistered reports a registered-user holder
func (h Holder) IsRegistered() bool {
	return h.UserID != nil
}
