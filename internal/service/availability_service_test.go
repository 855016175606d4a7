package service

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBooking(t *testing.T, store *memstore.Store, id string, grounds []string, start time.Time, hours int) *domain.Booking {
	t.Helper()
	user := "u1"
	b := &domain.Booking{
		ID:                   id,
		ReferenceCode:        "BK-" + id,
		VenueID:              "v1",
		TargetKind:           domain.TargetGround,
		TargetID:             grounds[0],
		GroundIDs:            grounds,
		Status:               domain.BookingStatusPending,
		Source:               domain.BookingSourceOnline,
		StartTime:            start,
		EndTime:              start.Add(time.Duration(hours) * time.Hour),
		TotalPrice:           240 * float64(hours),
		PaymentDeadline:      start.Add(-4 * time.Hour),
		CancellationDeadline: start.Add(-24 * time.Hour),
		PaymentMethod:        domain.PaymentMethodCard,
		UserID:               &user,
	}
	require.NoError(t, store.Repositories().Bookings.Create(context.Background(), b))
	return b
}

func TestGetTimeslots_ReasonPrecedence(t *testing.T) {
	store := newTestStore()
	day := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	store.AddException(domain.ScheduleException{
		ID: "x1", VenueID: "v1", TargetKind: domain.TargetGround, TargetID: "g1",
		StartTime: day.Add(10 * time.Hour), EndTime: day.Add(11 * time.Hour),
	})
	// exceptions on another ground do not block g1
	store.AddException(domain.ScheduleException{
		ID: "x2", VenueID: "v1", TargetKind: domain.TargetGround, TargetID: "g2",
		StartTime: day.Add(9 * time.Hour), EndTime: day.Add(10 * time.Hour), Reason: "reseeding",
	})
	seedBooking(t, store, "ELEVEN", []string{"g1"}, day.Add(11*time.Hour), 1)

	svc := NewAvailabilityService(store.Repositories(), &AvailabilityServiceConfig{WindowHours: 6})
	resp, err := svc.GetTimeslots(context.Background(), "v1", &dto.TimeslotsQuery{Target: "g1", Type: "GROUND", Date: "2025-01-06T06:00:00Z"})
	require.NoError(t, err)
	require.Len(t, resp.Slots, 6)

	wantReasons := []string{
		"outside operating hours (09:00-22:00)",
		"outside operating hours (09:00-22:00)",
		"outside operating hours (09:00-22:00)",
		"",
		domain.DefaultMaintenanceReason,
		"already booked (BK-ELEVEN)",
	}
	for i, want := range wantReasons {
		slot := resp.Slots[i]
		assert.Equal(t, day.Add(time.Duration(6+i)*time.Hour), slot.Start)
		assert.Equal(t, want, slot.Reason, "hour %d", 6+i)
		assert.Equal(t, want == "", slot.Available, "hour %d", 6+i)
	}

	nine := resp.Slots[3]
	assert.Equal(t, 180.0, nine.Price)
	assert.True(t, nine.IsOffPeakHour)
	assert.False(t, nine.IsPeakHour)

	assert.Equal(t, "g1", resp.Metadata.TargetID)
	assert.Equal(t, "GROUND", resp.Metadata.TargetType)
	assert.Equal(t, 1, resp.Metadata.MinBookingHours)
	assert.Equal(t, 3, resp.Metadata.MaxBookingHours)
	assert.Equal(t, 200.0, resp.Metadata.BasePrice)
}

func TestGetTimeslots_PeakPricing(t *testing.T) {
	store := newTestStore()
	svc := NewAvailabilityService(store.Repositories(), &AvailabilityServiceConfig{WindowHours: 6})

	resp, err := svc.GetTimeslots(context.Background(), "v1", &dto.TimeslotsQuery{Target: "g1", Type: "GROUND", Date: "2025-01-06T16:00:00Z"})
	require.NoError(t, err)

	prices := make([]float64, len(resp.Slots))
	for i, s := range resp.Slots {
		prices[i] = s.Price
	}
	// 16, 17 neutral; 18-20 peak; 21 neutral
	assert.Equal(t, []float64{200, 200, 240, 240, 240, 200}, prices)
	assert.True(t, resp.Slots[2].IsPeakHour)
}

func TestGetTimeslots_CombinationSeesMemberBookings(t *testing.T) {
	store := newTestStore()
	seedBooking(t, store, "G2", []string{"g2"}, monday18, 1)
	svc := NewAvailabilityService(store.Repositories(), nil)

	resp, err := svc.GetTimeslots(context.Background(), "v1", &dto.TimeslotsQuery{Target: "c1", Type: "COMBINATION", Date: "2025-01-06T18:00:00Z"})
	require.NoError(t, err)

	assert.False(t, resp.Slots[0].Available)
	assert.Equal(t, "already booked (BK-G2)", resp.Slots[0].Reason)
	assert.True(t, resp.Slots[1].Available)
	assert.Equal(t, 420.0, resp.Slots[1].Price)
}

func TestGetTimeslots_ClosedAndUnscheduledDays(t *testing.T) {
	store := memstore.New()
	v := testVenue()
	v.Schedule[0].OpenHour, v.Schedule[0].CloseHour = 0, 0 // Sunday closed
	v.Schedule[0].PeakHours, v.Schedule[0].OffPeakHours = nil, nil
	v.Schedule = v.Schedule[:6] // no Saturday entry
	store.AddVenue(v)
	svc := NewAvailabilityService(store.Repositories(), &AvailabilityServiceConfig{WindowHours: 2})

	tests := []struct {
		date string
		want string
	}{
		{"2025-01-05T12:00:00Z", ReasonClosed},
		{"2025-01-04T12:00:00Z", ReasonNoSchedule},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			resp, err := svc.GetTimeslots(context.Background(), "v1", &dto.TimeslotsQuery{Target: "g1", Type: "GROUND", Date: tt.date})
			require.NoError(t, err)
			for _, s := range resp.Slots {
				assert.False(t, s.Available)
				assert.Equal(t, tt.want, s.Reason)
			}
		})
	}
}

func TestGetTimeslots_UsesVenueTimezone(t *testing.T) {
	store := memstore.New()
	v := testVenue()
	v.Timezone = "Africa/Cairo"
	store.AddVenue(v)
	svc := NewAvailabilityService(store.Repositories(), &AvailabilityServiceConfig{WindowHours: 6})

	resp, err := svc.GetTimeslots(context.Background(), "v1", &dto.TimeslotsQuery{Target: "g1", Type: "GROUND", Date: "2025-01-06T07:00:00Z"})
	require.NoError(t, err)

	// 07:00 UTC is 09:00 in Cairo, the first open and off-peak hour
	assert.Equal(t, "Africa/Cairo", resp.Metadata.Timezone)
	assert.True(t, resp.Slots[0].Available)
	assert.True(t, resp.Slots[0].IsOffPeakHour)
	assert.Equal(t, 180.0, resp.Slots[0].Price)
}

func TestGetTimeslots_Errors(t *testing.T) {
	svc := NewAvailabilityService(newTestStore().Repositories(), nil)

	tests := []struct {
		name    string
		venueID string
		q       *dto.TimeslotsQuery
		check   func(t *testing.T, err error)
	}{
		{
			name:    "unknown venue",
			venueID: "v9",
			q:       &dto.TimeslotsQuery{Target: "g1", Type: "GROUND", Date: "2025-01-06"},
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrVenueNotFound) },
		},
		{
			name:    "unknown combination",
			venueID: "v1",
			q:       &dto.TimeslotsQuery{Target: "c9", Type: "COMBINATION", Date: "2025-01-06"},
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrCombinationNotFound) },
		},
		{
			name:    "bad date",
			venueID: "v1",
			q:       &dto.TimeslotsQuery{Target: "g1", Type: "GROUND", Date: "06/01/2025"},
			check: func(t *testing.T, err error) {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "date", verr.Path)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetTimeslots(context.Background(), tt.venueID, tt.q)
			tt.check(t, err)
		})
	}
}

func TestGetConstraints(t *testing.T) {
	store := memstore.New()
	v := testVenue()
	v.Grounds[0].Overrides = domain.RuleOverrides{CancellationFeePct: domain.FloatPtr(10)}
	v.Grounds[1].Overrides = domain.RuleOverrides{CancellationFeePct: domain.FloatPtr(40)}
	store.AddVenue(v)
	svc := NewAvailabilityService(store.Repositories(), nil)

	resp, err := svc.GetConstraints(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, resp.Targets, 3)

	assert.Equal(t, "UTC", resp.Timezone)
	assert.Len(t, resp.Schedule, 7)

	g1 := resp.Targets[0]
	assert.Equal(t, "GROUND", g1.TargetType)
	assert.Equal(t, 10.0, g1.Rules.CancellationFeePct)
	assert.Empty(t, g1.Conflicts)

	c1 := resp.Targets[2]
	assert.Equal(t, "COMBINATION", c1.TargetType)
	assert.Equal(t, []string{"g1", "g2"}, c1.GroundIDs)
	assert.Equal(t, 50.0, c1.Rules.CancellationFeePct, "highest of members and venue default")
	assert.Contains(t, c1.Conflicts, "cancellationFeePct")
}
