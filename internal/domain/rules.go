package domain

// RuleSet is a fully resolved set of booking rules for a venue or target
type RuleSet struct {
	MinBookingHours        int     `json:"minBookingHours"`
	MaxBookingHours        int     `json:"maxBookingHours"`
	CancellationFeePct     float64 `json:"cancellationFeePct"`
	NoShowFeePct           float64 `json:"noShowFeePct"`
	AdvanceBookingHours    int     `json:"advanceBookingHours"`
	PeakHourSurchargePct   float64 `json:"peakHourSurchargePct"`
	OffPeakDiscountPct     float64 `json:"offPeakDiscountPct"`
	PaymentDeadlineHours   int     `json:"paymentDeadlineHours"`
	CancellationGraceHours int     `json:"cancellationGraceHours"`
}

// RuleOverrides is a partial rule set; a nil field inherits the venue default.
// CancellationGraceHours is venue-only and has no override.
type RuleOverrides struct {
	MinBookingHours      *int     `json:"minBookingHours,omitempty"`
	MaxBookingHours      *int     `json:"maxBookingHours,omitempty"`
	CancellationFeePct   *float64 `json:"cancellationFeePct,omitempty"`
	NoShowFeePct         *float64 `json:"noShowFeePct,omitempty"`
	AdvanceBookingHours  *int     `json:"advanceBookingHours,omitempty"`
	PeakHourSurchargePct *float64 `json:"peakHourSurchargePct,omitempty"`
	OffPeakDiscountPct   *float64 `json:"offPeakDiscountPct,omitempty"`
	PaymentDeadlineHours *int     `json:"paymentDeadlineHours,omitempty"`
}

// IsEmpty reports whether no field is overridden
func (o RuleOverrides) IsEmpty() bool {
	return o == RuleOverrides{}
}

// DefaultRuleSet is applied to venues created without explicit rules
func DefaultRuleSet() RuleSet {
	return RuleSet{
		MinBookingHours:        1,
		MaxBookingHours:        4,
		CancellationFeePct:     0,
		NoShowFeePct:           0,
		AdvanceBookingHours:    1,
		PeakHourSurchargePct:   0,
		OffPeakDiscountPct:     0,
		PaymentDeadlineHours:   2,
		CancellationGraceHours: 24,
	}
}

// Validate checks the rule set is internally consistent
func (r RuleSet) Validate() error {
	switch {
	case r.MinBookingHours < 1:
		return NewValidationError("defaults.minBookingHours", "minBookingHours must be at least 1")
	case r.MaxBookingHours < r.MinBookingHours:
		return NewValidationError("defaults.maxBookingHours", "maxBookingHours must not be less than minBookingHours")
	case r.MaxBookingHours > 24:
		return NewValidationError("defaults.maxBookingHours", "maxBookingHours must not exceed 24")
	case !pct(r.CancellationFeePct):
		return NewValidationError("defaults.cancellationFeePct", "cancellationFeePct must be within 0..100")
	case !pct(r.NoShowFeePct):
		return NewValidationError("defaults.noShowFeePct", "noShowFeePct must be within 0..100")
	case !pct(r.PeakHourSurchargePct):
		return NewValidationError("defaults.peakHourSurchargePct", "peakHourSurchargePct must be within 0..100")
	case !pct(r.OffPeakDiscountPct):
		return NewValidationError("defaults.offPeakDiscountPct", "offPeakDiscountPct must be within 0..100")
	case r.AdvanceBookingHours < 0, r.PaymentDeadlineHours < 0, r.CancellationGraceHours < 0:
		return NewValidationError("defaults", "hour offsets must not be negative")
	}
	return nil
}

func pct(v float64) bool { return v >= 0 && v <= 100 }

// IntPtr and FloatPtr build override values
func IntPtr(v int) *int           { return &v }
func FloatPtr(v float64) *float64 { return &v }
