package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/pricing"
)

// Unavailability reasons
const (
	ReasonNoSchedule = "no schedule for this day"
	ReasonClosed     = "closed"
)

// slotChecker evaluates hour slots of one target against the venue schedule,
// the exceptions and the active bookings loaded for the period of interest
type slotChecker struct {
	venue      *domain.Venue
	loc        *time.Location
	target     domain.Target
	rules      domain.RuleSet
	exceptions []domain.ScheduleException
	bookings   []*domain.Booking
}

func newSlotChecker(v *domain.Venue, target domain.Target, rules domain.RuleSet, exceptions []domain.ScheduleException, bookings []*domain.Booking) *slotChecker {
	return &slotChecker{
		venue:      v,
		loc:        v.Location(),
		target:     target,
		rules:      rules,
		exceptions: exceptions,
		bookings:   bookings,
	}
}

// evaluate reports the hour starting at start. Checks run in a fixed order and
// the first failing one gives the reason: schedule, operating hours,
// exceptions, then existing bookings.
func (c *slotChecker) evaluate(start time.Time) dto.SlotReport {
	end := start.Add(time.Hour)
	report := dto.SlotReport{Start: start, End: end}

	local := start.In(c.loc)
	entry, ok := c.venue.Schedule.EntryFor(local.Weekday())
	switch {
	case !ok:
		report.Reason = ReasonNoSchedule
		return report
	case entry.IsClosed():
		report.Reason = ReasonClosed
		return report
	case !entry.IsOpenAt(local.Hour()):
		report.Reason = fmt.Sprintf("outside operating hours (%s)", entry.Window())
		return report
	}

	for _, x := range c.exceptions {
		if x.AppliesTo(c.target.Kind, c.target.ID) && domain.Overlaps(x.StartTime, x.EndTime, start, end) {
			report.Reason = x.ReasonOrDefault()
			return report
		}
	}

	if refs := c.conflictingReferences(start, end); len(refs) > 0 {
		report.Reason = "already booked (" + strings.Join(refs, ", ") + ")"
		return report
	}

	report.Available = true
	report.Price = pricing.HourPrice(c.target.BasePrice, local.Hour(), entry, c.rules)
	switch pricing.Classify(entry, local.Hour()) {
	case pricing.HourPeak:
		report.IsPeakHour = true
	case pricing.HourOffPeak:
		report.IsOffPeakHour = true
	}
	return report
}

func (c *slotChecker) conflictingReferences(start, end time.Time) []string {
	seen := map[string]bool{}
	var refs []string
	for _, b := range c.bookings {
		if b.ConflictsWith(c.target.GroundIDs, start, end) && !seen[b.ReferenceCode] {
			seen[b.ReferenceCode] = true
			refs = append(refs, b.ReferenceCode)
		}
	}
	sort.Strings(refs)
	return refs
}

// window reports consecutive hours starting at start
func (c *slotChecker) window(start time.Time, hours int) []dto.SlotReport {
	out := make([]dto.SlotReport, 0, hours)
	for i := 0; i < hours; i++ {
		out = append(out, c.evaluate(start.Add(time.Duration(i)*time.Hour)))
	}
	return out
}

// conflicts returns every slot that is not available
func (c *slotChecker) conflicts(slots []domain.Slot) []domain.SlotConflict {
	var out []domain.SlotConflict
	for _, s := range slots {
		if r := c.evaluate(s.Start); !r.Available {
			out = append(out, domain.SlotConflict{Start: s.Start, End: s.End, Reason: r.Reason})
		}
	}
	return out
}

// parseWindowStart accepts a calendar date, taken as midnight in loc, or an
// RFC 3339 instant, truncated to the start of its local hour
func parseWindowStart(date string, loc *time.Location) (time.Time, error) {
	if d, err := time.ParseInLocation("2006-01-02", date, loc); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return time.Time{}, domain.NewValidationError("date", "date must be YYYY-MM-DD or an RFC 3339 timestamp")
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc), nil
}
