package domain

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func weekSchedule(openHour, closeHour int) Schedule {
	s := make(Schedule, 7)
	for d := 0; d < 7; d++ {
		s[d] = ScheduleEntry{DayOfWeek: d, OpenHour: openHour, CloseHour: closeHour}
	}
	return s
}

func TestSchedule_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s Schedule) Schedule
		wantPath string
	}{
		{"valid", func(s Schedule) Schedule { return s }, ""},
		{"six entries", func(s Schedule) Schedule { return s[:6] }, "schedule"},
		{"duplicate day", func(s Schedule) Schedule { s[6].DayOfWeek = 0; return s }, "schedule[6].dayOfWeek"},
		{"open after close", func(s Schedule) Schedule { s[1].OpenHour = 23; s[1].CloseHour = 8; return s }, "schedule[1].openHour"},
		{"close out of range", func(s Schedule) Schedule { s[2].CloseHour = 25; return s }, "schedule[2]"},
		{"peak and off-peak overlap", func(s Schedule) Schedule {
			s[3].PeakHours = []int{18, 19}
			s[3].OffPeakHours = []int{10, 19}
			return s
		}, "schedule[3].offPeakHours"},
		{"closed day with peak hours", func(s Schedule) Schedule {
			s[4].OpenHour, s[4].CloseHour = 0, 0
			s[4].PeakHours = []int{18}
			return s
		}, "schedule[4]"},
		{"closed day empty sets", func(s Schedule) Schedule { s[5].OpenHour, s[5].CloseHour = 12, 12; return s }, ""},
		{"peak hour 24", func(s Schedule) Schedule { s[0].PeakHours = []int{24}; return s }, "schedule[0].peakHours"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(weekSchedule(9, 22)).Validate()
			if tt.wantPath == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if verr.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", verr.Path, tt.wantPath)
			}
			if !IsValidationError(err) {
				t.Error("IsValidationError() = false")
			}
		})
	}
}

func TestScheduleEntry_Hours(t *testing.T) {
	e := ScheduleEntry{DayOfWeek: 1, OpenHour: 9, CloseHour: 22, PeakHours: []int{18}, OffPeakHours: []int{10}}

	if e.IsOpenAt(8) || !e.IsOpenAt(9) || !e.IsOpenAt(21) || e.IsOpenAt(22) {
		t.Error("IsOpenAt should honour [open, close)")
	}
	if !e.IsPeak(18) || e.IsPeak(10) || !e.IsOffPeak(10) {
		t.Error("peak/off-peak lookup mismatch")
	}
	if e.Window() != "09:00-22:00" {
		t.Errorf("Window() = %q", e.Window())
	}

	closed := ScheduleEntry{OpenHour: 0, CloseHour: 0}
	if !closed.IsClosed() || closed.IsOpenAt(0) {
		t.Error("closed entry should never be open")
	}
}

func TestCombination_Validate(t *testing.T) {
	grounds := []Ground{
		{ID: "g1", Name: "A", Size: GroundSizeFive, Surface: SurfaceArtificial},
		{ID: "g2", Name: "B", Size: GroundSizeFive, Surface: SurfaceArtificial},
		{ID: "g3", Name: "C", Size: GroundSizeSeven, Surface: SurfaceNatural},
		{ID: "g4", Name: "D", Size: GroundSizeEleven, Surface: SurfaceArtificial},
	}

	tests := []struct {
		name    string
		members []string
		wantErr bool
	}{
		{"two same-surface grounds", []string{"g1", "g2"}, false},
		{"single member", []string{"g1"}, true},
		{"duplicate member", []string{"g1", "g1"}, true},
		{"mixed surface", []string{"g1", "g3"}, true},
		{"largest size", []string{"g1", "g4"}, true},
		{"foreign ground", []string{"g1", "gx"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Combination{ID: "c1", GroundIDs: tt.members}
			err := c.Validate(grounds)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVenue_ResolveTarget(t *testing.T) {
	v := &Venue{
		Grounds:      []Ground{{ID: "g1", Name: "A", BasePrice: 200}, {ID: "g2", Name: "B", BasePrice: 150}},
		Combinations: []Combination{{ID: "c1", Name: "A+B", BasePrice: 320, GroundIDs: []string{"g1", "g2"}}},
	}

	target, err := v.ResolveTarget(TargetCombination, "c1")
	if err != nil {
		t.Fatalf("ResolveTarget() error = %v", err)
	}
	if target.BasePrice != 320 || len(target.GroundIDs) != 2 {
		t.Errorf("unexpected target %+v", target)
	}

	if _, err := v.ResolveTarget(TargetGround, "nope"); !IsNotFoundError(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := v.ResolveTarget(TargetVenue, "x"); !IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestVenue_Location(t *testing.T) {
	if (&Venue{}).Location() != time.UTC {
		t.Error("empty timezone should default to UTC")
	}
	if (&Venue{Timezone: "Not/AZone"}).Location() != time.UTC {
		t.Error("unknown timezone should default to UTC")
	}
	if got := (&Venue{Timezone: "Africa/Cairo"}).Location().String(); got != "Africa/Cairo" {
		t.Errorf("Location() = %s", got)
	}
}

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusExpired, true},
		{BookingStatusPending, BookingStatusRejected, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusInProgress, true},
		{BookingStatusInProgress, BookingStatusDone, true},
		{BookingStatusInProgress, BookingStatusCancelled, false},
		{BookingStatusConfirmed, BookingStatusExpired, false},
		{BookingStatusDone, BookingStatusInProgress, false},
		{BookingStatusExpired, BookingStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBooking_CancellationFeeAt(t *testing.T) {
	deadline := at(12)
	b := &Booking{TotalPrice: 400, CancellationDeadline: deadline}

	if fee := b.CancellationFeeAt(deadline.Add(-time.Hour), 25); fee != 0 {
		t.Errorf("fee before deadline = %v, want 0", fee)
	}
	if fee := b.CancellationFeeAt(deadline.Add(time.Hour), 25); fee != 100 {
		t.Errorf("fee after deadline = %v, want 100", fee)
	}
}

func TestLifecycleJobsFor(t *testing.T) {
	b := &Booking{ID: "b1", Status: BookingStatusPending, PaymentMethod: PaymentMethodCard,
		StartTime: at(18), EndTime: at(20), PaymentDeadline: at(16)}

	jobs := LifecycleJobsFor(b)
	if len(jobs) != 3 || jobs[0].Kind != JobPaymentExpiry || !jobs[0].FireAt.Equal(at(16)) {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	b.PaymentMethod = PaymentMethodCash
	if jobs := LifecycleJobsFor(b); len(jobs) != 2 {
		t.Errorf("cash booking should not get an expiry job, got %+v", jobs)
	}

	b.PaymentMethod = PaymentMethodCard
	b.Status = BookingStatusConfirmed
	if jobs := LifecycleJobsFor(b); len(jobs) != 2 || jobs[0].Kind != JobStart {
		t.Errorf("confirmed booking jobs = %+v", jobs)
	}
}

func TestNewReferenceCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := NewReferenceCode()
		if len(code) != 11 || code[:3] != "BK-" {
			t.Fatalf("unexpected code %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}
