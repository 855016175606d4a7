package settings

import (
	"testing"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func venueDefaults() domain.RuleSet {
	return domain.RuleSet{
		MinBookingHours:        1,
		MaxBookingHours:        3,
		CancellationFeePct:     10,
		NoShowFeePct:           20,
		AdvanceBookingHours:    2,
		PeakHourSurchargePct:   20,
		OffPeakDiscountPct:     10,
		PaymentDeadlineHours:   4,
		CancellationGraceHours: 24,
	}
}

func TestResolveGround_NoOverridesReproducesDefaults(t *testing.T) {
	d := venueDefaults()
	assert.Equal(t, d, ResolveGround(domain.RuleOverrides{}, d))
}

func TestResolveGround_AppliesOverrides(t *testing.T) {
	d := venueDefaults()
	o := domain.RuleOverrides{
		MinBookingHours:      domain.IntPtr(2),
		PeakHourSurchargePct: domain.FloatPtr(0),
		PaymentDeadlineHours: domain.IntPtr(1),
	}

	got := ResolveGround(o, d)

	assert.Equal(t, 2, got.MinBookingHours)
	assert.Equal(t, 3, got.MaxBookingHours)
	assert.Equal(t, 0.0, got.PeakHourSurchargePct, "explicit zero must override")
	assert.Equal(t, 1, got.PaymentDeadlineHours)
	assert.Equal(t, 24, got.CancellationGraceHours)
}

func TestResolveGround_Idempotent(t *testing.T) {
	d := venueDefaults()
	o := domain.RuleOverrides{MaxBookingHours: domain.IntPtr(5), NoShowFeePct: domain.FloatPtr(50)}

	once := ResolveGround(o, d)
	twice := ResolveGround(o, once)

	assert.Equal(t, once, twice)
}

func TestResolveCombination_MinMaxFallback(t *testing.T) {
	d := venueDefaults()
	members := []domain.RuleOverrides{
		{MinBookingHours: domain.IntPtr(3), MaxBookingHours: domain.IntPtr(2)},
		{MinBookingHours: domain.IntPtr(4), MaxBookingHours: domain.IntPtr(2)},
	}

	got, conflicts := ResolveCombination(members, d)

	assert.Equal(t, d.MinBookingHours, got.MinBookingHours)
	assert.Equal(t, d.MaxBookingHours, got.MaxBookingHours)
	assert.Contains(t, conflicts, "minBookingHours")
}

func TestResolveCombination_Aggregation(t *testing.T) {
	d := venueDefaults()
	members := []domain.RuleOverrides{
		{MinBookingHours: domain.IntPtr(2), MaxBookingHours: domain.IntPtr(4), AdvanceBookingHours: domain.IntPtr(6), OffPeakDiscountPct: domain.FloatPtr(12)},
		{MaxBookingHours: domain.IntPtr(5), CancellationFeePct: domain.FloatPtr(11), PaymentDeadlineHours: domain.IntPtr(1)},
	}

	got, conflicts := ResolveCombination(members, d)

	assert.Equal(t, 2, got.MinBookingHours, "largest member min (2 vs default 1)")
	assert.Equal(t, 4, got.MaxBookingHours, "smallest member max")
	assert.Equal(t, 6, got.AdvanceBookingHours)
	assert.Equal(t, 4, got.PaymentDeadlineHours, "venue default beats shorter member value")
	assert.Equal(t, 11.0, got.CancellationFeePct)
	assert.Equal(t, 10.0, got.OffPeakDiscountPct, "lowest of members and default")
	assert.Equal(t, 24, got.CancellationGraceHours)
	assert.Empty(t, conflicts)
}

func TestResolveCombination_VarianceConflicts(t *testing.T) {
	d := venueDefaults()
	members := []domain.RuleOverrides{
		{CancellationFeePct: domain.FloatPtr(10), PeakHourSurchargePct: domain.FloatPtr(20)},
		{CancellationFeePct: domain.FloatPtr(50), PeakHourSurchargePct: domain.FloatPtr(25)},
	}

	got, conflicts := ResolveCombination(members, d)

	assert.Equal(t, 50.0, got.CancellationFeePct)
	assert.Contains(t, conflicts, "cancellationFeePct", "80% spread")
	assert.NotContains(t, conflicts, "peakHourSurchargePct", "20% spread is below threshold")
}

func TestResolveCombination_ZeroValuesSkipVariance(t *testing.T) {
	d := venueDefaults()
	d.NoShowFeePct = 0
	members := []domain.RuleOverrides{{}, {}}

	_, conflicts := ResolveCombination(members, d)
	assert.NotContains(t, conflicts, "noShowFeePct")
}

func TestResolveCombination_OrderIndependent(t *testing.T) {
	d := venueDefaults()
	a := domain.RuleOverrides{MinBookingHours: domain.IntPtr(2), CancellationFeePct: domain.FloatPtr(40), OffPeakDiscountPct: domain.FloatPtr(5)}
	b := domain.RuleOverrides{MaxBookingHours: domain.IntPtr(2), NoShowFeePct: domain.FloatPtr(60)}
	c := domain.RuleOverrides{AdvanceBookingHours: domain.IntPtr(12), PeakHourSurchargePct: domain.FloatPtr(35)}

	r1, c1 := ResolveCombination([]domain.RuleOverrides{a, b, c}, d)
	r2, c2 := ResolveCombination([]domain.RuleOverrides{c, a, b}, d)
	r3, c3 := ResolveCombination([]domain.RuleOverrides{b, c, a}, d)

	assert.Equal(t, r1, r2)
	assert.Equal(t, r1, r3)
	assert.Equal(t, c1, c2)
	assert.Equal(t, c1, c3)
}

func TestResolveTarget(t *testing.T) {
	v := &domain.Venue{
		Defaults: venueDefaults(),
		Grounds: []domain.Ground{
			{ID: "g1", Overrides: domain.RuleOverrides{MinBookingHours: domain.IntPtr(2)}},
			{ID: "g2"},
		},
		Combinations: []domain.Combination{
			{ID: "c1", GroundIDs: []string{"g1", "g2"}, Overrides: domain.RuleOverrides{PeakHourSurchargePct: domain.FloatPtr(5)}},
		},
	}

	rules, _, err := ResolveTarget(v, domain.TargetGround, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, rules.MinBookingHours)

	rules, _, err = ResolveTarget(v, domain.TargetCombination, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, rules.MinBookingHours)
	assert.Equal(t, 5.0, rules.PeakHourSurchargePct, "combination override applies on top")

	_, _, err = ResolveTarget(v, domain.TargetCombination, "missing")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestResolveCombinationTarget_Overrides(t *testing.T) {
	crossing := []domain.Ground{
		{ID: "g1", Overrides: domain.RuleOverrides{MinBookingHours: domain.IntPtr(3), CancellationFeePct: domain.FloatPtr(10)}},
		{ID: "g2", Overrides: domain.RuleOverrides{MaxBookingHours: domain.IntPtr(2), CancellationFeePct: domain.FloatPtr(50)}},
	}

	tests := []struct {
		name          string
		overrides     domain.RuleOverrides
		wantMin       int
		wantMax       int
		wantFee       float64
		wantConflicts []string
	}{
		{
			name:          "no overrides keeps aggregate conflicts",
			wantMin:       1,
			wantMax:       3,
			wantFee:       50,
			wantConflicts: []string{"minBookingHours", "cancellationFeePct"},
		},
		{
			name:          "overridden fields drop their conflicts",
			overrides:     domain.RuleOverrides{MinBookingHours: domain.IntPtr(2), MaxBookingHours: domain.IntPtr(2), CancellationFeePct: domain.FloatPtr(25)},
			wantMin:       2,
			wantMax:       2,
			wantFee:       25,
			wantConflicts: nil,
		},
		{
			name:          "crossed min and max are ignored",
			overrides:     domain.RuleOverrides{MinBookingHours: domain.IntPtr(5), CancellationFeePct: domain.FloatPtr(25)},
			wantMin:       1,
			wantMax:       3,
			wantFee:       50,
			wantConflicts: []string{"minBookingHours", "cancellationFeePct", "overrides"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &domain.Venue{Defaults: venueDefaults(), Grounds: crossing}
			c := &domain.Combination{ID: "c1", GroundIDs: []string{"g1", "g2"}, Overrides: tt.overrides}

			rules, conflicts := ResolveCombinationTarget(v, c)

			assert.NoError(t, rules.Validate())
			assert.Equal(t, tt.wantMin, rules.MinBookingHours)
			assert.Equal(t, tt.wantMax, rules.MaxBookingHours)
			assert.Equal(t, tt.wantFee, rules.CancellationFeePct)
			keys := make([]string, 0, len(conflicts))
			for k := range conflicts {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.wantConflicts, keys)
		})
	}
}
