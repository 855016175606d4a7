// Package recurrence expands recurring booking requests into occurrence dates
// and maps a template set of hour slots onto each date.
package recurrence

import (
	"fmt"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
)

// Params are the recurrence parameters shared by ExpandDates and CalculateEndDate
type Params struct {
	Start     time.Time
	Frequency domain.Frequency
	Interval  domain.RecurrenceInterval
	Count     int
	// EndsAt stops the series after the last occurrence on or before its date
	EndsAt *time.Time
}

func (p Params) step() (int, error) {
	step, ok := p.Interval.Step(p.Frequency)
	if !ok {
		return 0, domain.NewValidationError("recurringOptions.interval",
			fmt.Sprintf("interval %s is not valid for %s recurrence", p.Interval, p.Frequency))
	}
	if p.Count < 1 {
		return 0, domain.NewValidationError("recurringOptions.occurrenceCount", "occurrenceCount must be at least 1")
	}
	return step, nil
}

// ExpandDates returns up to Count occurrence dates starting at Start. Every
// occurrence is computed from Start, so monthly series clamp to the last day
// of short months without drifting.
func ExpandDates(p Params) ([]time.Time, error) {
	step, err := p.step()
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, p.Count)
	for k := 0; k < p.Count; k++ {
		d := occurrenceAt(p.Start, p.Frequency, step, k)
		if p.EndsAt != nil && afterDate(d, *p.EndsAt) {
			break
		}
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return nil, domain.NewValidationError("recurringOptions.endsAt", "endsAt is before the first occurrence")
	}
	return dates, nil
}

// CalculateEndDate returns the date of the last occurrence without
// generating the series. It always equals the last element of ExpandDates.
func CalculateEndDate(p Params) (time.Time, error) {
	step, err := p.step()
	if err != nil {
		return time.Time{}, err
	}

	last := p.Count - 1
	if p.EndsAt != nil {
		if est := estimateIndex(p.Start, *p.EndsAt, p.Frequency, step); est < last {
			last = est
		}
		for last >= 0 && afterDate(occurrenceAt(p.Start, p.Frequency, step, last), *p.EndsAt) {
			last--
		}
	}
	if last < 0 {
		return time.Time{}, domain.NewValidationError("recurringOptions.endsAt", "endsAt is before the first occurrence")
	}
	return occurrenceAt(p.Start, p.Frequency, step, last), nil
}

// MapTemplateToDate re-expresses template slots on date, keeping each slot's
// time of day, its day offset from the first slot and its duration.
func MapTemplateToDate(template []domain.Slot, date time.Time) []domain.Slot {
	if len(template) == 0 {
		return nil
	}
	loc := date.Location()
	first := template[0].Start.In(loc)
	y, m, d := date.Date()

	out := make([]domain.Slot, len(template))
	for i, s := range template {
		local := s.Start.In(loc)
		offset := daysBetween(first, local)
		start := time.Date(y, m, d+offset, local.Hour(), local.Minute(), local.Second(), 0, loc)
		out[i] = domain.Slot{Start: start, End: start.Add(s.End.Sub(s.Start))}
	}
	return out
}

func occurrenceAt(start time.Time, freq domain.Frequency, step, k int) time.Time {
	if freq == domain.FrequencyWeekly {
		return start.AddDate(0, 0, 7*step*k)
	}
	return addMonthsClamped(start, step*k)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func estimateIndex(start, endsAt time.Time, freq domain.Frequency, step int) int {
	end := endsAt.In(start.Location())
	if freq == domain.FrequencyWeekly {
		return daysBetween(start, end) / (7 * step)
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	return months / step
}

// afterDate compares calendar dates in a's location
func afterDate(a, b time.Time) bool {
	return daysBetween(b.In(a.Location()), a) > 0
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
