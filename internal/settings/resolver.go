// Package settings merges venue default rules with ground and combination
// overrides into effective rule sets.
package settings

import (
	"errors"
	"fmt"
	"math"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
)

// VarianceThreshold is the relative spread above which a combination field is reported
const VarianceThreshold = 0.30

// Conflicts maps a rule field name to an advisory message. Conflicts never
// block resolution.
type Conflicts map[string]string

// ResolveGround applies a ground's overrides on top of the venue defaults.
// CancellationGraceHours always comes from the defaults.
func ResolveGround(o domain.RuleOverrides, d domain.RuleSet) domain.RuleSet {
	return domain.RuleSet{
		MinBookingHours:        intOr(o.MinBookingHours, d.MinBookingHours),
		MaxBookingHours:        intOr(o.MaxBookingHours, d.MaxBookingHours),
		CancellationFeePct:     floatOr(o.CancellationFeePct, d.CancellationFeePct),
		NoShowFeePct:           floatOr(o.NoShowFeePct, d.NoShowFeePct),
		AdvanceBookingHours:    intOr(o.AdvanceBookingHours, d.AdvanceBookingHours),
		PeakHourSurchargePct:   floatOr(o.PeakHourSurchargePct, d.PeakHourSurchargePct),
		OffPeakDiscountPct:     floatOr(o.OffPeakDiscountPct, d.OffPeakDiscountPct),
		PaymentDeadlineHours:   intOr(o.PaymentDeadlineHours, d.PaymentDeadlineHours),
		CancellationGraceHours: d.CancellationGraceHours,
	}
}

// ResolveCombination aggregates the member grounds' overrides. For every field
// each member contributes its override, or the venue default when it has none.
//
//   - min hours is the largest member min, max hours the smallest member max;
//     when they cross, both fall back to the defaults and a conflict is recorded
//   - advance and payment deadline hours take the longest of members and default
//   - fee and surcharge percentages take the highest, the off-peak discount the
//     lowest, each with a variance conflict when the spread exceeds 30%
//   - cancellation grace hours always come from the defaults
//
// The result does not depend on member order.
func ResolveCombination(members []domain.RuleOverrides, d domain.RuleSet) (domain.RuleSet, Conflicts) {
	conflicts := Conflicts{}
	if len(members) == 0 {
		return ResolveGround(domain.RuleOverrides{}, d), conflicts
	}

	collectInt := func(get func(domain.RuleOverrides) *int, def int) []float64 {
		out := make([]float64, 0, len(members))
		for _, m := range members {
			out = append(out, float64(intOr(get(m), def)))
		}
		return out
	}
	collectFloat := func(get func(domain.RuleOverrides) *float64, def float64) []float64 {
		out := make([]float64, 0, len(members))
		for _, m := range members {
			out = append(out, floatOr(get(m), def))
		}
		return out
	}

	r := domain.RuleSet{CancellationGraceHours: d.CancellationGraceHours}

	mins := collectInt(func(o domain.RuleOverrides) *int { return o.MinBookingHours }, d.MinBookingHours)
	maxs := collectInt(func(o domain.RuleOverrides) *int { return o.MaxBookingHours }, d.MaxBookingHours)
	r.MinBookingHours = int(maxOf(mins))
	r.MaxBookingHours = int(minOf(maxs))
	if r.MinBookingHours > r.MaxBookingHours {
		conflicts["minBookingHours"] = fmt.Sprintf(
			"member grounds require at least %d hours but allow at most %d; falling back to venue defaults (%d-%d)",
			r.MinBookingHours, r.MaxBookingHours, d.MinBookingHours, d.MaxBookingHours)
		r.MinBookingHours = d.MinBookingHours
		r.MaxBookingHours = d.MaxBookingHours
	}

	advance := collectInt(func(o domain.RuleOverrides) *int { return o.AdvanceBookingHours }, d.AdvanceBookingHours)
	r.AdvanceBookingHours = int(maxOf(append(advance, float64(d.AdvanceBookingHours))))

	deadline := collectInt(func(o domain.RuleOverrides) *int { return o.PaymentDeadlineHours }, d.PaymentDeadlineHours)
	r.PaymentDeadlineHours = int(maxOf(append(deadline, float64(d.PaymentDeadlineHours))))

	highest := func(field string, get func(domain.RuleOverrides) *float64, def float64) float64 {
		vals := collectFloat(get, def)
		checkVariance(conflicts, field, vals)
		return maxOf(append(vals, def))
	}
	r.CancellationFeePct = highest("cancellationFeePct", func(o domain.RuleOverrides) *float64 { return o.CancellationFeePct }, d.CancellationFeePct)
	r.NoShowFeePct = highest("noShowFeePct", func(o domain.RuleOverrides) *float64 { return o.NoShowFeePct }, d.NoShowFeePct)
	r.PeakHourSurchargePct = highest("peakHourSurchargePct", func(o domain.RuleOverrides) *float64 { return o.PeakHourSurchargePct }, d.PeakHourSurchargePct)

	discounts := collectFloat(func(o domain.RuleOverrides) *float64 { return o.OffPeakDiscountPct }, d.OffPeakDiscountPct)
	checkVariance(conflicts, "offPeakDiscountPct", discounts)
	r.OffPeakDiscountPct = minOf(append(discounts, d.OffPeakDiscountPct))

	return r, conflicts
}

// ResolveCombinationTarget aggregates the members and then applies the
// combination's own overrides on top of the aggregate. Conflicts about fields
// the combination overrides are dropped. Overrides that leave an inconsistent
// rule set are ignored and reported under "overrides".
func ResolveCombinationTarget(v *domain.Venue, c *domain.Combination) (domain.RuleSet, Conflicts) {
	agg, conflicts := ResolveCombination(v.MemberOverrides(c), v.Defaults)
	if c.Overrides.IsEmpty() {
		return agg, conflicts
	}

	rules := ResolveGround(c.Overrides, agg)
	if err := rules.Validate(); err != nil {
		var verr *domain.ValidationError
		msg := err.Error()
		if errors.As(err, &verr) {
			msg = verr.Message
		}
		conflicts["overrides"] = "combination overrides ignored: " + msg
		return agg, conflicts
	}

	for _, field := range overriddenFields(c.Overrides) {
		delete(conflicts, field)
	}
	return rules, conflicts
}

// overriddenFields names the fields o sets, keyed like Conflicts
func overriddenFields(o domain.RuleOverrides) []string {
	var fields []string
	if o.MinBookingHours != nil || o.MaxBookingHours != nil {
		fields = append(fields, "minBookingHours")
	}
	if o.CancellationFeePct != nil {
		fields = append(fields, "cancellationFeePct")
	}
	if o.NoShowFeePct != nil {
		fields = append(fields, "noShowFeePct")
	}
	if o.PeakHourSurchargePct != nil {
		fields = append(fields, "peakHourSurchargePct")
	}
	if o.OffPeakDiscountPct != nil {
		fields = append(fields, "offPeakDiscountPct")
	}
	return fields
}

// ResolveTarget returns the effective rules for a ground or combination of v
func ResolveTarget(v *domain.Venue, kind domain.TargetKind, id string) (domain.RuleSet, Conflicts, error) {
	switch kind {
	case domain.TargetGround:
		g, ok := v.Ground(id)
		if !ok {
			return domain.RuleSet{}, nil, fmt.Errorf("%w: %s", domain.ErrGroundNotFound, id)
		}
		return ResolveGround(g.Overrides, v.Defaults), Conflicts{}, nil
	case domain.TargetCombination:
		c, ok := v.Combination(id)
		if !ok {
			return domain.RuleSet{}, nil, fmt.Errorf("%w: %s", domain.ErrCombinationNotFound, id)
		}
		rules, conflicts := ResolveCombinationTarget(v, c)
		return rules, conflicts, nil
	default:
		return domain.RuleSet{}, nil, domain.NewValidationError("targetType", fmt.Sprintf("unsupported target type %q", kind))
	}
}

func checkVariance(conflicts Conflicts, field string, vals []float64) {
	hi, lo := maxOf(vals), minOf(vals)
	if hi == 0 {
		return
	}
	if spread := (hi - lo) / hi; spread > VarianceThreshold {
		conflicts[field] = fmt.Sprintf("member values range from %g to %g (%.0f%% spread)", lo, hi, spread*100)
	}
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func maxOf(vals []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vals {
		m = math.Max(m, v)
	}
	return m
}

func minOf(vals []float64) float64 {
	m := math.Inf(1)
	for _, v := range vals {
		m = math.Min(m, v)
	}
	return m
}
