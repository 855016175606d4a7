package domain

import (
	"fmt"
	"sort"
	"time"
)

// ScheduleEntry holds operating hours for one day of the week
type ScheduleEntry struct {
	// DayOfWeek is 0..6 with Sunday = 0
	DayOfWeek    int   `json:"dayOfWeek"`
	OpenHour     int   `json:"openHour"`
	CloseHour    int   `json:"closeHour"`
	PeakHours    []int `json:"peakHours"`
	OffPeakHours []int `json:"offPeakHours"`
}

// IsClosed reports a closed-all-day entry (open == close)
func (e ScheduleEntry) IsClosed() bool {
	return e.OpenHour == e.CloseHour
}

// IsOpenAt reports whether hour falls inside [open, close)
func (e ScheduleEntry) IsOpenAt(hour int) bool {
	return !e.IsClosed() && hour >= e.OpenHour && hour < e.CloseHour
}

func (e ScheduleEntry) IsPeak(hour int) bool    { return containsHour(e.PeakHours, hour) }
func (e ScheduleEntry) IsOffPeak(hour int) bool { return containsHour(e.OffPeakHours, hour) }

// Window formats the operating window, e.g. "09:00-22:00"
func (e ScheduleEntry) Window() string {
	return fmt.Sprintf("%02d:00-%02d:00", e.OpenHour, e.CloseHour)
}

func (e ScheduleEntry) validate(path string) error {
	if e.DayOfWeek < 0 || e.DayOfWeek > 6 {
		return NewValidationError(path+".dayOfWeek", "dayOfWeek must be within 0..6")
	}
	if e.OpenHour < 0 || e.OpenHour > 24 || e.CloseHour < 0 || e.CloseHour > 24 {
		return NewValidationError(path, "openHour and closeHour must be within 0..24")
	}
	if e.OpenHour > e.CloseHour {
		return NewValidationError(path+".openHour", "openHour must not be after closeHour")
	}
	if e.IsClosed() && (len(e.PeakHours) > 0 || len(e.OffPeakHours) > 0) {
		return NewValidationError(path, "a closed day cannot have peak or off-peak hours")
	}

	seen := make(map[int]bool, len(e.PeakHours))
	for _, h := range e.PeakHours {
		if h < 0 || h > 23 {
			return NewValidationError(path+".peakHours", "peak hours must be within 0..23")
		}
		seen[h] = true
	}
	for _, h := range e.OffPeakHours {
		if h < 0 || h > 23 {
			return NewValidationError(path+".offPeakHours", "off-peak hours must be within 0..23")
		}
		if seen[h] {
			return NewValidationError(path+".offPeakHours", fmt.Sprintf("hour %d is both peak and off-peak", h))
		}
	}
	return nil
}

// Schedule is the weekly operating schedule of a venue
type Schedule []ScheduleEntry

// Validate enforces exactly seven entries with unique days and valid hours
func (s Schedule) Validate() error {
	if len(s) != 7 {
		return NewValidationError("schedule", fmt.Sprintf("schedule must have exactly 7 entries, got %d", len(s)))
	}
	days := make(map[int]bool, 7)
	for i, e := range s {
		path := fmt.Sprintf("schedule[%d]", i)
		if err := e.validate(path); err != nil {
			return err
		}
		if days[e.DayOfWeek] {
			return NewValidationError(path+".dayOfWeek", fmt.Sprintf("duplicate entry for day %d", e.DayOfWeek))
		}
		days[e.DayOfWeek] = true
	}
	return nil
}

// EntryFor returns the entry for weekday, if any
func (s Schedule) EntryFor(day time.Weekday) (ScheduleEntry, bool) {
	for _, e := range s {
		if e.DayOfWeek == int(day) {
			return e, true
		}
	}
	return ScheduleEntry{}, false
}

// Normalized returns a copy sorted by day with sorted hour sets
func (s Schedule) Normalized() Schedule {
	out := make(Schedule, len(s))
	for i, e := range s {
		e.PeakHours = sortedHours(e.PeakHours)
		e.OffPeakHours = sortedHours(e.OffPeakHours)
		out[i] = e
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out
}

// ScheduleException closes a venue or a single target for a time range
type ScheduleException struct {
	ID         string     `json:"id"`
	VenueID    string     `json:"venueId"`
	TargetKind TargetKind `json:"targetKind"`
	TargetID   string     `json:"targetId"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    time.Time  `json:"endTime"`
	Reason     string     `json:"reason,omitempty"`
}

// DefaultMaintenanceReason is reported for exceptions without a reason
const DefaultMaintenanceReason = "closed for maintenance"

// AppliesTo reports whether the exception blocks the given target: venue-wide
// exceptions block everything, others only their exact target.
func (x ScheduleException) AppliesTo(kind TargetKind, id string) bool {
	if x.TargetKind == TargetVenue {
		return true
	}
	return x.TargetKind == kind && x.TargetID == id
}

// ReasonOrDefault returns the exception reason or the maintenance default
func (x ScheduleException) ReasonOrDefault() string {
	if x.Reason == "" {
		return DefaultMaintenanceReason
	}
	return x.Reason
}

func containsHour(hours []int, h int) bool {
	for _, x := range hours {
		if x == h {
			return true
		}
	}
	return false
}

func sortedHours(in []int) []int {
	out := append([]int{}, in...)
	sort.Ints(out)
	return out
}
