package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/service"
	pkgredis "github.com/prohmpiriya/pitch-booking/pkg/redis"
	"github.com/prohmpiriya/pitch-booking/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLifecycleService is a mock implementation of service.LifecycleService
type MockLifecycleService struct {
	ApplyFunc func(ctx context.Context, job domain.LifecycleJob) (bool, error)
	SweepFunc func(ctx context.Context, now time.Time, limit int) (int, error)

	mu      sync.Mutex
	applied []string
}

func (m *MockLifecycleService) Apply(ctx context.Context, job domain.LifecycleJob) (bool, error) {
	m.mu.Lock()
	m.applied = append(m.applied, job.ID)
	m.mu.Unlock()
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, job)
	}
	return true, nil
}

func (m *MockLifecycleService) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx, now, limit)
	}
	return 0, nil
}

func (m *MockLifecycleService) Applied() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.applied...)
}

// MockDLQPublisher records dead letters
type MockDLQPublisher struct {
	PublishFunc func(ctx context.Context, msg *retry.DLQMessage) error

	mu       sync.Mutex
	messages []*retry.DLQMessage
}

func (m *MockDLQPublisher) PublishToDLQ(ctx context.Context, msg *retry.DLQMessage) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	return nil
}

var workerNow = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

func setupQueue(t *testing.T) (*repository.RedisJobQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := repository.NewRedisJobQueue(pkgredis.Wrap(client), "lifecycle:jobs", time.Minute)
	require.NoError(t, q.LoadScripts(context.Background()))
	return q, mr
}

func newTestWorker(q repository.JobQueue, lifecycle service.LifecycleService, dlq retry.DLQPublisher) *LifecycleWorker {
	w := NewLifecycleWorker(q, lifecycle, dlq, &LifecycleWorkerConfig{
		PollInterval:   10 * time.Millisecond,
		BatchSize:      10,
		ReapInterval:   time.Hour,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	w.now = func() time.Time { return workerNow }
	return w
}

func TestLifecycleWorker_ProcessBatch(t *testing.T) {
	tests := []struct {
		name             string
		apply            func(ctx context.Context, job domain.LifecycleJob) (bool, error)
		publishErr       error
		wantApplied      int64
		wantSkipped      int64
		wantDeadLettered int
		wantPending      int64
		wantApplyCalls   int
	}{
		{
			name:           "applied jobs are acked",
			apply:          func(ctx context.Context, job domain.LifecycleJob) (bool, error) { return true, nil },
			wantApplied:    2,
			wantApplyCalls: 2,
		},
		{
			name:           "stale jobs are acked without effect",
			apply:          func(ctx context.Context, job domain.LifecycleJob) (bool, error) { return false, nil },
			wantSkipped:    2,
			wantApplyCalls: 2,
		},
		{
			name: "failing jobs are dead-lettered after max attempts",
			apply: func(ctx context.Context, job domain.LifecycleJob) (bool, error) {
				return false, errors.New("database unavailable")
			},
			wantDeadLettered: 2,
			wantApplyCalls:   4,
		},
		{
			name: "unknown kinds are dead-lettered without retry",
			apply: func(ctx context.Context, job domain.LifecycleJob) (bool, error) {
				return false, service.ErrUnknownJobKind
			},
			wantDeadLettered: 2,
			wantApplyCalls:   2,
		},
		{
			name: "jobs stay queued when the dead-letter write fails",
			apply: func(ctx context.Context, job domain.LifecycleJob) (bool, error) {
				return false, errors.New("database unavailable")
			},
			publishErr:     errors.New("redis down"),
			wantPending:    2,
			wantApplyCalls: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			q, _ := setupQueue(t)
			require.NoError(t, q.Enqueue(ctx,
				domain.NewLifecycleJob(domain.JobStart, "b1", workerNow.Add(-time.Minute)),
				domain.NewLifecycleJob(domain.JobPaymentExpiry, "b2", workerNow.Add(-time.Minute)),
				domain.NewLifecycleJob(domain.JobEnd, "b1", workerNow.Add(time.Hour)),
			))

			lifecycle := &MockLifecycleService{ApplyFunc: tt.apply}
			dlq := &MockDLQPublisher{}
			if tt.publishErr != nil {
				dlq.PublishFunc = func(ctx context.Context, msg *retry.DLQMessage) error { return tt.publishErr }
			}
			w := newTestWorker(q, lifecycle, dlq)

			claimed := w.ProcessBatch(ctx)
			assert.Equal(t, 2, claimed)
			assert.Len(t, lifecycle.Applied(), tt.wantApplyCalls)

			stats := w.GetStats()
			assert.Equal(t, tt.wantApplied, stats.Applied)
			assert.Equal(t, tt.wantSkipped, stats.Skipped)
			assert.Len(t, dlq.messages, tt.wantDeadLettered)
			assert.Equal(t, int64(tt.wantDeadLettered), stats.DeadLettered)

			// END:b1 is not due yet and always stays pending
			pending, err := q.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPending+1, pending)
		})
	}
}

func TestLifecycleWorker_DeadLetterCarriesJob(t *testing.T) {
	ctx := context.Background()
	q, _ := setupQueue(t)
	require.NoError(t, q.Enqueue(ctx, domain.NewLifecycleJob(domain.JobStart, "b1", workerNow.Add(-time.Minute))))

	dlq := &MockDLQPublisher{}
	w := newTestWorker(q, &MockLifecycleService{
		ApplyFunc: func(ctx context.Context, job domain.LifecycleJob) (bool, error) {
			return false, errors.New("database unavailable")
		},
	}, dlq)

	w.ProcessBatch(ctx)

	require.Len(t, dlq.messages, 1)
	msg := dlq.messages[0]
	assert.Equal(t, "START:b1", msg.ID)
	assert.Equal(t, "START", msg.Kind)
	assert.Equal(t, "b1", msg.Key)
	assert.Equal(t, 2, msg.Attempts)
	assert.Equal(t, "database unavailable", msg.Error)
	assert.Equal(t, "lifecycle-worker", msg.Source)
	assert.Contains(t, string(msg.Payload), `"bookingId":"b1"`)
	assert.Equal(t, int64(1), w.GetStats().DeadLettered)
}

func TestLifecycleWorker_ShutdownReturnsJob(t *testing.T) {
	q, _ := setupQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Enqueue(ctx, domain.NewLifecycleJob(domain.JobStart, "b1", workerNow.Add(-time.Minute))))

	w := newTestWorker(q, &MockLifecycleService{
		ApplyFunc: func(ctx context.Context, job domain.LifecycleJob) (bool, error) {
			cancel()
			return false, ctx.Err()
		},
	}, &MockDLQPublisher{})

	w.ProcessBatch(ctx)

	pending, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	jobs, err := q.Claim(context.Background(), workerNow, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Attempts)
}

func TestLifecycleWorker_StartStop(t *testing.T) {
	ctx := context.Background()
	q, _ := setupQueue(t)
	require.NoError(t, q.Enqueue(ctx, domain.NewLifecycleJob(domain.JobStart, "b1", workerNow.Add(-time.Minute))))

	var calls atomic.Int32
	w := newTestWorker(q, &MockLifecycleService{
		ApplyFunc: func(ctx context.Context, job domain.LifecycleJob) (bool, error) {
			calls.Add(1)
			return true, nil
		},
	}, &MockDLQPublisher{})

	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	assert.False(t, w.GetStats().IsRunning)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSweeper_RunOnce(t *testing.T) {
	tests := []struct {
		name string
		n    int
		err  error
		want int64
	}{
		{name: "repairs are counted", n: 3, want: 3},
		{name: "partial sweep still counts", n: 1, err: errors.New("deadline exceeded"), want: 1},
		{name: "nothing overdue", n: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotNow time.Time
			var gotLimit int
			s := NewSweeper(&MockLifecycleService{
				SweepFunc: func(ctx context.Context, now time.Time, limit int) (int, error) {
					gotNow, gotLimit = now, limit
					return tt.n, tt.err
				},
			}, &SweeperConfig{Schedule: "@every 1m", BatchSize: 25, Timeout: time.Second})
			s.now = func() time.Time { return workerNow }

			assert.Equal(t, tt.n, s.RunOnce(context.Background()))
			assert.Equal(t, workerNow, gotNow)
			assert.Equal(t, 25, gotLimit)

			stats := s.GetStats()
			assert.Equal(t, tt.want, stats.Repaired)
			assert.Equal(t, workerNow, stats.LastRunAt)
		})
	}
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	s := NewSweeper(&MockLifecycleService{}, &SweeperConfig{Schedule: "every now and then"})
	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.GetStats().IsRunning)
}

func TestSweeper_StartStop(t *testing.T) {
	var runs atomic.Int32
	s := NewSweeper(&MockLifecycleService{
		SweepFunc: func(ctx context.Context, now time.Time, limit int) (int, error) {
			runs.Add(1)
			return 0, nil
		},
	}, &SweeperConfig{Schedule: "@every 1s", BatchSize: 10})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
	assert.False(t, s.GetStats().IsRunning)
}
