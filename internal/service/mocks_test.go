package service

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/dto"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/repository/memstore"
	"github.com/prohmpiriya/pitch-booking/pkg/kafka"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu            sync.Mutex
	created       []*domain.Booking
	statusChanged []*domain.Booking
	previous      []domain.BookingStatus
	publishError  error
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishBookingCreated(ctx context.Context, booking *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.created = append(m.created, booking)
	return nil
}

func (m *MockEventPublisher) PublishStatusChanged(ctx context.Context, booking *domain.Booking, previous domain.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.statusChanged = append(m.statusChanged, booking)
	m.previous = append(m.previous, previous)
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) CreatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func (m *MockEventPublisher) StatusChangedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statusChanged)
}

// MockJobQueue is a func-field JobQueue that records enqueued jobs
type MockJobQueue struct {
	mu          sync.Mutex
	enqueued    []domain.LifecycleJob
	EnqueueFunc func(ctx context.Context, jobs ...domain.LifecycleJob) error
}

func (m *MockJobQueue) Enqueue(ctx context.Context, jobs ...domain.LifecycleJob) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, jobs...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, jobs...)
	return nil
}

func (m *MockJobQueue) Claim(ctx context.Context, now time.Time, limit int) ([]domain.LifecycleJob, error) {
	return nil, nil
}

func (m *MockJobQueue) Ack(ctx context.Context, jobID string) error { return nil }

func (m *MockJobQueue) Retry(ctx context.Context, job domain.LifecycleJob, at time.Time) error {
	return nil
}

func (m *MockJobQueue) Reap(ctx context.Context, now time.Time) (int, error) { return 0, nil }

func (m *MockJobQueue) Len(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.enqueued)), nil
}

func (m *MockJobQueue) Kinds() []domain.JobKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.JobKind, len(m.enqueued))
	for i, j := range m.enqueued {
		out[i] = j.Kind
	}
	return out
}

// MockProducer captures produced Kafka messages
type MockProducer struct {
	ProduceFunc func(ctx context.Context, msg *kafka.Message) error
	messages    []*kafka.Message
	closed      bool
}

func (m *MockProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	if m.ProduceFunc != nil {
		return m.ProduceFunc(ctx, msg)
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockProducer) Close() { m.closed = true }

// MockTransactor fails every transaction with err
type MockTransactor struct {
	RunFunc func(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error
	calls   int
}

func (m *MockTransactor) RunSerializable(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
	m.calls++
	return m.RunFunc(ctx, fn)
}

var testNow = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

// monday18 is Monday 2025-01-06 18:00 UTC, a peak hour at the test venue
var monday18 = time.Date(2025, 1, 6, 18, 0, 0, 0, time.UTC)

func testSchedule() domain.Schedule {
	s := make(domain.Schedule, 7)
	for d := 0; d < 7; d++ {
		s[d] = domain.ScheduleEntry{
			DayOfWeek:    d,
			OpenHour:     9,
			CloseHour:    22,
			PeakHours:    []int{18, 19, 20},
			OffPeakHours: []int{9, 10},
		}
	}
	return s
}

func testVenue() *domain.Venue {
	return &domain.Venue{
		ID:                "v1",
		OwnerID:           "owner-1",
		Name:              "Canal Side",
		Timezone:          "UTC",
		AutomaticApproval: true,
		Defaults: domain.RuleSet{
			MinBookingHours:        1,
			MaxBookingHours:        3,
			CancellationFeePct:     50,
			AdvanceBookingHours:    2,
			PeakHourSurchargePct:   20,
			OffPeakDiscountPct:     10,
			PaymentDeadlineHours:   4,
			CancellationGraceHours: 24,
		},
		Schedule: testSchedule(),
		Grounds: []domain.Ground{
			{ID: "g1", VenueID: "v1", Name: "Pitch 1", BasePrice: 200, Size: domain.GroundSizeFive, Surface: domain.SurfaceArtificial},
			{ID: "g2", VenueID: "v1", Name: "Pitch 2", BasePrice: 200, Size: domain.GroundSizeFive, Surface: domain.SurfaceArtificial},
		},
		Combinations: []domain.Combination{
			{ID: "c1", VenueID: "v1", Name: "Pitch 1+2", BasePrice: 350, GroundIDs: []string{"g1", "g2"}},
		},
	}
}

func newTestStore() *memstore.Store {
	store := memstore.New()
	store.AddVenue(testVenue())
	return store
}

func hourSlots(start time.Time, hours int) []dto.TimeslotRequest {
	out := make([]dto.TimeslotRequest, hours)
	for i := range out {
		s := start.Add(time.Duration(i) * time.Hour)
		out[i] = dto.TimeslotRequest{Start: s, End: s.Add(time.Hour)}
	}
	return out
}

func bookingRequest(targetType, target string, start time.Time, hours int) *dto.CreateBookingRequest {
	return &dto.CreateBookingRequest{
		FirstName:     "Mona",
		LastName:      "Adel",
		Phone:         "+201001234567",
		TargetType:    targetType,
		Target:        target,
		Timeslots:     hourSlots(start, hours),
		PaymentMethod: "CARD",
	}
}

func fixedNow() time.Time { return testNow }
