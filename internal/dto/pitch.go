package dto

import (
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
)

// TimeslotsQuery selects the target and window of an availability report.
// Date is either YYYY-MM-DD (midnight in the venue time zone) or RFC 3339.
type TimeslotsQuery struct {
	Target string `form:"target" validate:"required"`
	Type   string `form:"type" validate:"required,oneof=GROUND COMBINATION"`
	Date   string `form:"date" validate:"required"`
}

// SlotReport is the availability of one hour
type SlotReport struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Available     bool      `json:"available"`
	Reason        string    `json:"reason,omitempty"`
	Price         float64   `json:"price,omitempty"`
	IsPeakHour    bool      `json:"isPeakHour"`
	IsOffPeakHour bool      `json:"isOffPeakHour"`
}

// TimeslotsMetadata lets clients validate a slot selection locally
type TimeslotsMetadata struct {
	TargetID        string    `json:"targetId"`
	TargetType      string    `json:"targetType"`
	WindowStart     time.Time `json:"windowStart"`
	WindowHours     int       `json:"windowHours"`
	Timezone        string    `json:"timezone"`
	MinBookingHours int       `json:"minBookingHours"`
	MaxBookingHours int       `json:"maxBookingHours"`
	BasePrice       float64   `json:"basePrice"`
	Currency        string    `json:"currency"`
}

// TimeslotsResponse is an availability report
type TimeslotsResponse struct {
	Metadata TimeslotsMetadata `json:"metadata"`
	Slots    []SlotReport      `json:"slots"`
}

// TargetConstraints are the resolved rules of one ground or combination
type TargetConstraints struct {
	TargetType string            `json:"targetType"`
	TargetID   string            `json:"targetId"`
	Name       string            `json:"name"`
	BasePrice  float64           `json:"basePrice"`
	GroundIDs  []string          `json:"groundIds"`
	Rules      domain.RuleSet    `json:"rules"`
	Conflicts  map[string]string `json:"conflicts,omitempty"`
}

// ConstraintsResponse is a venue with the effective rules of every target
type ConstraintsResponse struct {
	VenueID           string              `json:"venueId"`
	Name              string              `json:"name"`
	Timezone          string              `json:"timezone"`
	AutomaticApproval bool                `json:"automaticApproval"`
	Defaults          domain.RuleSet      `json:"defaults"`
	Schedule          domain.Schedule     `json:"schedule"`
	Targets           []TargetConstraints `json:"targets"`
}

// UpdateScheduleRequest replaces a venue's weekly schedule
type UpdateScheduleRequest struct {
	Schedule domain.Schedule `json:"schedule" validate:"required,len=7"`
}
