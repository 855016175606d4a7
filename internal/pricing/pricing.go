// Package pricing computes hourly, range and series prices from base prices,
// the weekly schedule's peak/off-peak hours and the effective rule set.
package pricing

import (
	"math"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
)

// HourKind classifies an hour for pricing
type HourKind int

const (
	HourNeutral HourKind = iota
	HourPeak
	HourOffPeak
)

// Classify returns whether hour is peak, off-peak or neutral for entry
func Classify(entry domain.ScheduleEntry, hour int) HourKind {
	switch {
	case entry.IsPeak(hour):
		return HourPeak
	case entry.IsOffPeak(hour):
		return HourOffPeak
	default:
		return HourNeutral
	}
}

// HourPrice adjusts base for the hour and rounds to the nearest whole unit.
// Rounding happens per hour so totals match the displayed slot prices.
func HourPrice(base float64, hour int, entry domain.ScheduleEntry, rules domain.RuleSet) float64 {
	price := base
	switch Classify(entry, hour) {
	case HourPeak:
		price = base * (1 + rules.PeakHourSurchargePct/100)
	case HourOffPeak:
		price = base * (1 - rules.OffPeakDiscountPct/100)
	}
	return math.Round(price)
}

// RangePrice sums the hour prices of slots. Each slot is priced by the schedule
// entry of its own weekday in loc.
func RangePrice(base float64, slots []domain.Slot, schedule domain.Schedule, rules domain.RuleSet, loc *time.Location) float64 {
	total := 0.0
	for _, s := range slots {
		local := s.Start.In(loc)
		entry, _ := schedule.EntryFor(local.Weekday())
		total += HourPrice(base, local.Hour(), entry, rules)
	}
	return total
}

// SeriesQuote is the price breakdown of a recurring series
type SeriesQuote struct {
	// PerOccurrence is the amount charged on each booking of the series
	PerOccurrence []float64
	// Total is the amount of the whole series
	Total float64
}

// SeriesPrice prices a series given the range price of every occurrence.
// ONE_TIME charges the first occurrence's price for every occurrence; PER_INSTANCE
// charges each occurrence its own price.
func SeriesPrice(mode domain.PaymentMode, occurrencePrices []float64) SeriesQuote {
	q := SeriesQuote{PerOccurrence: make([]float64, len(occurrencePrices))}
	if len(occurrencePrices) == 0 {
		return q
	}

	switch mode {
	case domain.PaymentModeOneTime:
		first := occurrencePrices[0]
		for i := range q.PerOccurrence {
			q.PerOccurrence[i] = first
		}
		q.Total = first * float64(len(occurrencePrices))
	default:
		for i, p := range occurrencePrices {
			q.PerOccurrence[i] = p
			q.Total += p
		}
	}
	return q
}
