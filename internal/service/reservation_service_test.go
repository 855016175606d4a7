package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reservationFixture struct {
	store  *memstore.Store
	jobs   *MockJobQueue
	events *MockEventPublisher
	svc    ReservationService
}

func newReservationFixture(t *testing.T, cfg *ReservationServiceConfig) *reservationFixture {
	t.Helper()
	store := newTestStore()
	if cfg == nil {
		cfg = &ReservationServiceConfig{}
	}
	cfg.Now = fixedNow
	f := &reservationFixture{store: store, jobs: &MockJobQueue{}, events: NewMockEventPublisher()}
	f.svc = NewReservationService(store.Repositories(), store, f.jobs, f.events, cfg)
	return f
}

func TestCreateBooking_GuestSingleBooking(t *testing.T) {
	f := newReservationFixture(t, nil)

	resp, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", bookingRequest("GROUND", "g1", monday18, 2))
	require.NoError(t, err)
	require.Len(t, resp.Bookings, 1)

	b := resp.Bookings[0]
	assert.Equal(t, "PENDING", b.Status)
	assert.Equal(t, "ONLINE", b.Source)
	assert.Equal(t, []string{"g1"}, b.GroundIDs)
	assert.Equal(t, 480.0, b.TotalPrice, "two peak hours at 200 + 20%")
	assert.Equal(t, 480.0, resp.TotalPrice)
	assert.Equal(t, monday18.Add(-4*time.Hour), b.PaymentDeadline)
	assert.Equal(t, monday18.Add(-24*time.Hour), b.CancellationDeadline)
	assert.NotNil(t, b.GuestID)
	assert.Nil(t, b.UserID)
	assert.Nil(t, resp.Recurrence)
	assert.Regexp(t, `^BK-[A-Z0-9]{8}$`, b.ReferenceCode)

	assert.Equal(t, []domain.JobKind{domain.JobPaymentExpiry, domain.JobStart, domain.JobEnd}, f.jobs.Kinds())
	assert.Equal(t, 1, f.events.CreatedCount())
}

func TestCreateBooking_InitialStatus(t *testing.T) {
	tests := []struct {
		name       string
		caller     Caller
		register   bool
		method     string
		paid       bool
		wantStatus string
		wantJobs   int
	}{
		{name: "guest card unpaid", method: "CARD", wantStatus: "PENDING", wantJobs: 3},
		{name: "guest cash", method: "CASH", wantStatus: "PENDING", wantJobs: 2},
		{name: "phone of registered user pays cash", register: true, method: "CASH", wantStatus: "CONFIRMED", wantJobs: 2},
		{name: "registered caller card unpaid", caller: Caller{UserID: "u9"}, method: "CARD", wantStatus: "PENDING", wantJobs: 3},
		{name: "online caller cannot mark a card booking paid", caller: Caller{UserID: "u9"}, method: "CARD", paid: true, wantStatus: "PENDING", wantJobs: 3},
		{name: "staff records card payment", caller: Caller{UserID: "staff-1", Staff: true}, register: true, method: "CARD", paid: true, wantStatus: "CONFIRMED", wantJobs: 2},
		{name: "staff card unpaid confirmed without expiry", caller: Caller{UserID: "staff-1", Staff: true}, register: true, method: "CARD", wantStatus: "CONFIRMED", wantJobs: 2},
		{name: "payment method defaults to cash", caller: Caller{UserID: "u9"}, wantStatus: "CONFIRMED", wantJobs: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReservationFixture(t, nil)
			if tt.register {
				f.store.AddUser("u1", "+201001234567")
			}
			req := bookingRequest("GROUND", "g1", monday18, 1)
			req.PaymentMethod = tt.method
			req.IsPaid = tt.paid

			resp, err := f.svc.CreateBooking(context.Background(), tt.caller, "v1", req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.Bookings[0].Status)
			assert.Equal(t, tt.paid && tt.caller.Staff, resp.Bookings[0].IsPaid)
			assert.Len(t, f.jobs.Kinds(), tt.wantJobs)
		})
	}
}

func TestCreateBooking_HolderResolution(t *testing.T) {
	t.Run("non-staff caller books for themselves", func(t *testing.T) {
		f := newReservationFixture(t, nil)
		f.store.AddUser("u1", "+201001234567")

		resp, err := f.svc.CreateBooking(context.Background(), Caller{UserID: "u9"}, "v1", bookingRequest("GROUND", "g1", monday18, 1))
		require.NoError(t, err)
		require.NotNil(t, resp.Bookings[0].UserID)
		assert.Equal(t, "u9", *resp.Bookings[0].UserID)
	})

	t.Run("staff books for the phone owner", func(t *testing.T) {
		f := newReservationFixture(t, nil)
		f.store.AddUser("u1", "+201001234567")

		resp, err := f.svc.CreateBooking(context.Background(), Caller{UserID: "staff-1", Staff: true}, "v1", bookingRequest("GROUND", "g1", monday18, 1))
		require.NoError(t, err)
		require.NotNil(t, resp.Bookings[0].UserID)
		assert.Equal(t, "u1", *resp.Bookings[0].UserID)
		assert.Equal(t, "STAFF", resp.Bookings[0].Source)
	})

	t.Run("same phone reuses the venue guest", func(t *testing.T) {
		f := newReservationFixture(t, nil)

		first, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", bookingRequest("GROUND", "g1", monday18, 1))
		require.NoError(t, err)
		second, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", bookingRequest("GROUND", "g2", monday18, 1))
		require.NoError(t, err)

		assert.Equal(t, *first.Bookings[0].GuestID, *second.Bookings[0].GuestID)
	})
}

func TestCreateBooking_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *dto.CreateBookingRequest)
		wantPath string
	}{
		{
			name:     "invalid phone",
			mutate:   func(r *dto.CreateBookingRequest) { r.Phone = "0100" },
			wantPath: "phone",
		},
		{
			name: "gap between slots",
			mutate: func(r *dto.CreateBookingRequest) {
				r.Timeslots = append(hourSlots(monday18, 1), hourSlots(monday18.Add(2*time.Hour), 1)...)
			},
			wantPath: "timeslots",
		},
		{
			name:     "longer than max hours",
			mutate:   func(r *dto.CreateBookingRequest) { r.Timeslots = hourSlots(monday18.Add(-4*time.Hour), 4) },
			wantPath: "timeslots",
		},
		{
			name:     "slot in the past",
			mutate:   func(r *dto.CreateBookingRequest) { r.Timeslots = hourSlots(testNow.Add(-24*time.Hour), 1) },
			wantPath: "timeslots",
		},
		{
			name:     "inside the online advance window",
			mutate:   func(r *dto.CreateBookingRequest) { r.Timeslots = hourSlots(testNow.Add(time.Hour), 1) },
			wantPath: "timeslots",
		},
		{
			name: "not on the hour",
			mutate: func(r *dto.CreateBookingRequest) {
				r.Timeslots = hourSlots(monday18.Add(30*time.Minute), 1)
			},
			wantPath: "timeslots[0]",
		},
		{
			name: "monthly series with weekly interval",
			mutate: func(r *dto.CreateBookingRequest) {
				r.RecurringOptions = &dto.RecurringOptionsRequest{Frequency: "MONTHLY", Interval: "ONE_WEEK", OccurrenceCount: 2, PaymentMode: "ONE_TIME"}
			},
			wantPath: "recurringOptions.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReservationFixture(t, nil)
			req := bookingRequest("GROUND", "g1", monday18, 1)
			tt.mutate(req)

			_, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", req)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantPath, verr.Path)
			bookings, _ := f.store.Counts()
			assert.Zero(t, bookings)
		})
	}
}

func TestCreateBooking_StaffSkipsAdvanceCutoff(t *testing.T) {
	f := newReservationFixture(t, nil)
	start := testNow.Add(time.Hour) // 09:00 on the same day

	resp, err := f.svc.CreateBooking(context.Background(), Caller{UserID: "staff-1", Staff: true}, "v1", bookingRequest("GROUND", "g1", start, 1))
	require.NoError(t, err)

	b := resp.Bookings[0]
	assert.Equal(t, "STAFF", b.Source)
	assert.Equal(t, 180.0, b.TotalPrice, "off-peak hour at 200 - 10%")
	assert.Equal(t, start, b.PaymentDeadline, "a deadline already passed moves to the start")
}

func TestCreateBooking_Unavailable(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, store *memstore.Store)
		targetType string
		target     string
		start      time.Time
		wantReason string
	}{
		{
			name:       "outside operating hours",
			targetType: "GROUND",
			target:     "g1",
			start:      time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC),
			wantReason: "outside operating hours (09:00-22:00)",
		},
		{
			name: "venue exception",
			setup: func(t *testing.T, store *memstore.Store) {
				store.AddException(domain.ScheduleException{ID: "x1", VenueID: "v1", TargetKind: domain.TargetVenue, StartTime: monday18, EndTime: monday18.Add(time.Hour), Reason: "league final"})
			},
			targetType: "GROUND",
			target:     "g1",
			start:      monday18,
			wantReason: "league final",
		},
		{
			name: "member ground of combination booked",
			setup: func(t *testing.T, store *memstore.Store) {
				existing := &domain.Booking{
					ID: "b0", ReferenceCode: "BK-EXISTING", VenueID: "v1", TargetKind: domain.TargetGround, TargetID: "g2",
					GroundIDs: []string{"g2"}, Status: domain.BookingStatusConfirmed,
					StartTime: monday18, EndTime: monday18.Add(time.Hour),
				}
				require.NoError(t, store.Repositories().Bookings.Create(context.Background(), existing))
			},
			targetType: "COMBINATION",
			target:     "c1",
			start:      monday18,
			wantReason: "already booked (BK-EXISTING)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReservationFixture(t, nil)
			if tt.setup != nil {
				tt.setup(t, f.store)
			}

			_, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", bookingRequest(tt.targetType, tt.target, tt.start, 1))

			var uerr *domain.UnavailableError
			require.ErrorAs(t, err, &uerr)
			require.Len(t, uerr.Slots, 1)
			assert.Equal(t, tt.wantReason, uerr.Slots[0].Reason)
			assert.Empty(t, f.jobs.Kinds())
			assert.Zero(t, f.events.CreatedCount())
		})
	}
}

func TestCreateBooking_UnknownTarget(t *testing.T) {
	f := newReservationFixture(t, nil)

	_, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", bookingRequest("GROUND", "g9", monday18, 1))
	assert.ErrorIs(t, err, domain.ErrGroundNotFound)

	_, err = f.svc.CreateBooking(context.Background(), Caller{}, "v9", bookingRequest("GROUND", "g1", monday18, 1))
	assert.ErrorIs(t, err, domain.ErrVenueNotFound)
}

func TestCreateBooking_RecurringSeries(t *testing.T) {
	f := newReservationFixture(t, nil)
	req := bookingRequest("GROUND", "g1", monday18, 2)
	req.RecurringOptions = &dto.RecurringOptionsRequest{
		Frequency:       "WEEKLY",
		Interval:        "ONE_WEEK",
		OccurrenceCount: 3,
		PaymentMode:     "ONE_TIME",
	}

	resp, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", req)
	require.NoError(t, err)
	require.Len(t, resp.Bookings, 3)
	require.NotNil(t, resp.Recurrence)

	for i, b := range resp.Bookings {
		assert.Equal(t, monday18.AddDate(0, 0, 7*i), b.StartTime)
		assert.Equal(t, monday18.AddDate(0, 0, 7*i).Add(2*time.Hour), b.EndTime)
		assert.Equal(t, 480.0, b.TotalPrice)
		require.NotNil(t, b.RecurrenceID)
		assert.Equal(t, resp.Recurrence.ID, *b.RecurrenceID)
		assert.Equal(t, b.StartTime.Add(-4*time.Hour), b.PaymentDeadline)
	}
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), resp.Recurrence.EndDate)
	assert.Equal(t, 1440.0, resp.Recurrence.TotalAmount)
	assert.Equal(t, 1440.0, resp.TotalPrice)

	bookings, groups := f.store.Counts()
	assert.Equal(t, 3, bookings)
	assert.Equal(t, 1, groups)
	assert.Len(t, f.jobs.Kinds(), 9)
	assert.Equal(t, 3, f.events.CreatedCount())
}

func TestCreateBooking_RecurringIsAllOrNothing(t *testing.T) {
	f := newReservationFixture(t, nil)
	secondOccurrence := monday18.AddDate(0, 0, 7)
	existing := &domain.Booking{
		ID: "b0", ReferenceCode: "BK-TAKEN", VenueID: "v1", TargetKind: domain.TargetGround, TargetID: "g1",
		GroundIDs: []string{"g1"}, Status: domain.BookingStatusPending,
		StartTime: secondOccurrence, EndTime: secondOccurrence.Add(time.Hour),
	}
	require.NoError(t, f.store.Repositories().Bookings.Create(context.Background(), existing))

	req := bookingRequest("GROUND", "g1", monday18, 1)
	req.RecurringOptions = &dto.RecurringOptionsRequest{
		Frequency:       "WEEKLY",
		Interval:        "ONE_WEEK",
		OccurrenceCount: 3,
		PaymentMode:     "PER_INSTANCE",
	}

	_, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", req)

	var uerr *domain.UnavailableError
	require.ErrorAs(t, err, &uerr)
	require.Len(t, uerr.Slots, 1)
	assert.Equal(t, secondOccurrence, uerr.Slots[0].Start)

	bookings, groups := f.store.Counts()
	assert.Equal(t, 1, bookings, "only the pre-existing booking remains")
	assert.Zero(t, groups)
	assert.Empty(t, f.jobs.Kinds())
}

func TestCreateBooking_RecurrenceSizeCap(t *testing.T) {
	f := newReservationFixture(t, &ReservationServiceConfig{MaxRecurrence: 4})
	req := bookingRequest("GROUND", "g1", monday18, 1)
	req.RecurringOptions = &dto.RecurringOptionsRequest{Frequency: "WEEKLY", Interval: "ONE_WEEK", OccurrenceCount: 5, PaymentMode: "ONE_TIME"}

	_, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", req)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "recurringOptions.occurrenceCount", verr.Path)
}

func TestCreateBooking_NoDoubleBookingUnderConcurrency(t *testing.T) {
	f := newReservationFixture(t, nil)
	const workers = 16

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		succeeded   int
		unavailable int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// half target the ground, half the combination containing it
			req := bookingRequest("GROUND", "g1", monday18, 1)
			if i%2 == 1 {
				req = bookingRequest("COMBINATION", "c1", monday18, 1)
			}
			req.Phone = fmt.Sprintf("+2010012345%02d", i)

			_, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsUnavailableError(err):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, unavailable)
	bookings, _ := f.store.Counts()
	assert.Equal(t, 1, bookings)
}

func TestCreateBooking_RetryableConflict(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		failures   int
		wantErr    error
		wantCalls  int
	}{
		{name: "surfaced without retries", maxRetries: 0, failures: 1, wantErr: domain.ErrRetryableConflict, wantCalls: 1},
		{name: "absorbed by retries", maxRetries: 2, failures: 2, wantCalls: 3},
		{name: "retries exhausted", maxRetries: 1, failures: 5, wantErr: domain.ErrRetryableConflict, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			tx := &MockTransactor{}
			tx.RunFunc = func(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
				if tx.calls <= tt.failures {
					return domain.ErrRetryableConflict
				}
				return store.RunSerializable(ctx, fn)
			}
			svc := NewReservationService(store.Repositories(), tx, &MockJobQueue{}, nil, &ReservationServiceConfig{
				TxMaxRetries:   tt.maxRetries,
				TxRetryBackoff: time.Millisecond,
				Now:            fixedNow,
			})

			_, err := svc.CreateBooking(context.Background(), Caller{}, "v1", bookingRequest("GROUND", "g1", monday18, 1))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, tx.calls)
		})
	}
}

func TestCreateBooking_UnavailableIsNotRetried(t *testing.T) {
	store := newTestStore()
	tx := &MockTransactor{}
	tx.RunFunc = func(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
		return &domain.UnavailableError{Slots: []domain.SlotConflict{{Start: monday18, End: monday18.Add(time.Hour), Reason: "closed"}}}
	}
	svc := NewReservationService(store.Repositories(), tx, nil, nil, &ReservationServiceConfig{TxMaxRetries: 3, TxRetryBackoff: time.Millisecond, Now: fixedNow})

	_, err := svc.CreateBooking(context.Background(), Caller{}, "v1", bookingRequest("GROUND", "g1", monday18, 1))

	assert.True(t, domain.IsUnavailableError(err))
	assert.Equal(t, 1, tx.calls)
}

func TestCreateBooking_EnqueueFailureDoesNotFailBooking(t *testing.T) {
	f := newReservationFixture(t, nil)
	f.jobs.EnqueueFunc = func(ctx context.Context, jobs ...domain.LifecycleJob) error {
		return errors.New("redis down")
	}

	resp, err := f.svc.CreateBooking(context.Background(), Caller{}, "v1", bookingRequest("GROUND", "g1", monday18, 1))
	require.NoError(t, err)
	assert.Len(t, resp.Bookings, 1)
	bookings, _ := f.store.Counts()
	assert.Equal(t, 1, bookings)
}

func TestDefaultStatusPolicy(t *testing.T) {
	tests := []struct {
		name string
		in   StatusInput
		want domain.BookingStatus
	}{
		{"registered auto paid", StatusInput{RegisteredUser: true, AutomaticApproval: true, Paid: true}, domain.BookingStatusConfirmed},
		{"registered auto cash", StatusInput{RegisteredUser: true, AutomaticApproval: true, Cash: true}, domain.BookingStatusConfirmed},
		{"registered auto staff", StatusInput{RegisteredUser: true, AutomaticApproval: true, StaffCreated: true}, domain.BookingStatusConfirmed},
		{"registered auto unpaid card", StatusInput{RegisteredUser: true, AutomaticApproval: true}, domain.BookingStatusPending},
		{"registered manual approval", StatusInput{RegisteredUser: true, Paid: true, Cash: true}, domain.BookingStatusPending},
		{"guest", StatusInput{AutomaticApproval: true, Paid: true}, domain.BookingStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultStatusPolicy(tt.in))
		})
	}
}
