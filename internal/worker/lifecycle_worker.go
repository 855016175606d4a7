package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/metrics"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/service"
	"github.com/prohmpiriya/pitch-booking/pkg/logger"
	"github.com/prohmpiriya/pitch-booking/pkg/retry"
	"go.uber.org/zap"
)

// LifecycleWorkerConfig contains configuration for the lifecycle worker
type LifecycleWorkerConfig struct {
	// PollInterval is the wait between claims when the queue had nothing due
	PollInterval time.Duration
	// BatchSize is the number of jobs claimed per poll
	BatchSize int
	// ReapInterval is how often expired leases are returned to the queue
	ReapInterval time.Duration
	// MaxAttempts bounds in-process attempts before a job is dead-lettered
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultLifecycleWorkerConfig returns default configuration
func DefaultLifecycleWorkerConfig() *LifecycleWorkerConfig {
	return &LifecycleWorkerConfig{
		PollInterval:   time.Second,
		BatchSize:      50,
		ReapInterval:   30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// LifecycleWorker drains due lifecycle jobs from the queue and applies them
type LifecycleWorker struct {
	queue     repository.JobQueue
	lifecycle service.LifecycleService
	dlq       *retry.DLQHandler
	config    *LifecycleWorkerConfig
	now       func() time.Time
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	// Stats
	applied      int64
	skipped      int64
	deadLettered int64
	lastPollTime time.Time
}

// NewLifecycleWorker creates a new lifecycle worker. Jobs that keep failing
// are handed to dlqPublisher.
func NewLifecycleWorker(
	queue repository.JobQueue,
	lifecycle service.LifecycleService,
	dlqPublisher retry.DLQPublisher,
	config *LifecycleWorkerConfig,
) *LifecycleWorker {
	if config == nil {
		config = DefaultLifecycleWorkerConfig()
	}
	defaults := DefaultLifecycleWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = defaults.ReapInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	w := &LifecycleWorker{
		queue:     queue,
		lifecycle: lifecycle,
		config:    config,
		now:       time.Now,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}
	w.dlq = retry.NewDLQHandler(dlqPublisher, &retry.DLQHandlerConfig{
		RetryConfig: &retry.Config{
			MaxRetries:      config.MaxAttempts - 1,
			InitialInterval: config.InitialBackoff,
			MaxInterval:     config.MaxBackoff,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
		Source: "lifecycle-worker",
		OnDLQ:  w.onDeadLetter,
	})
	return w
}

// Start starts the poll and reap loops
func (w *LifecycleWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("lifecycle worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting lifecycle worker")

	w.wg.Add(2)
	go w.pollLoop(ctx)
	go w.reapLoop(ctx)

	return nil
}

// Stop stops the worker and waits for in-flight jobs
func (w *LifecycleWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping lifecycle worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Lifecycle worker stopped")
}

func (w *LifecycleWorker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		n := w.ProcessBatch(ctx)

		// a full batch means more may be due
		wait := w.config.PollInterval
		if n >= w.config.BatchSize {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(wait):
		}
	}
}

func (w *LifecycleWorker) reapLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			n, err := w.queue.Reap(ctx, w.now())
			if err != nil {
				w.log.ErrorContext(ctx, "failed to reap expired leases", zap.Error(err))
				continue
			}
			if n > 0 {
				w.log.InfoContext(ctx, "returned expired leases to queue", zap.Int("count", n))
			}
		}
	}
}

// ProcessBatch claims one batch of due jobs, applies them and reports how
// many were claimed
func (w *LifecycleWorker) ProcessBatch(ctx context.Context) int {
	now := w.now()
	w.mu.Lock()
	w.lastPollTime = now
	w.mu.Unlock()

	jobs, err := w.queue.Claim(ctx, now, w.config.BatchSize)
	if err != nil {
		w.log.ErrorContext(ctx, "failed to claim lifecycle jobs", zap.Error(err))
		return 0
	}

	for _, job := range jobs {
		w.processJob(ctx, job)
	}
	return len(jobs)
}

func (w *LifecycleWorker) processJob(ctx context.Context, job domain.LifecycleJob) {
	metrics.JobStarted(ctx)
	defer metrics.JobFinished(ctx)

	payload, _ := json.Marshal(job)
	msgCtx := &retry.MessageContext{
		ID:      job.ID,
		Kind:    string(job.Kind),
		Key:     job.BookingID,
		Payload: payload,
		Metadata: map[string]string{
			"booking_id": job.BookingID,
			"fire_at":    job.FireAt.UTC().Format(time.RFC3339),
			"deliveries": strconv.Itoa(job.Attempts + 1),
		},
	}

	var applied bool
	err := w.dlq.ProcessWithDLQ(ctx, msgCtx, func(ctx context.Context) error {
		ok, err := w.lifecycle.Apply(ctx, job)
		if errors.Is(err, service.ErrUnknownJobKind) {
			return retry.Permanent(err)
		}
		applied = ok
		return err
	})

	switch {
	case err == nil:
		outcome := "skipped"
		if applied {
			outcome = "applied"
		}
		metrics.RecordJob(ctx, string(job.Kind), outcome)
		w.count(applied)
		w.ack(ctx, job)

	case errors.Is(err, retry.ErrContextCanceled):
		// shutting down: hand the lease back so another worker picks it up
		job.Attempts++
		if rerr := w.queue.Retry(context.WithoutCancel(ctx), job, w.now()); rerr != nil {
			w.log.Warn("failed to return job to queue", zap.String("job_id", job.ID), zap.Error(rerr))
		}

	case errors.Is(err, retry.ErrMaxRetriesExceeded), errors.Is(err, service.ErrUnknownJobKind):
		metrics.RecordJob(ctx, string(job.Kind), "dead_lettered")
		w.ack(ctx, job)

	default:
		// the dead-letter write failed; keep the job and try again later
		metrics.RecordJob(ctx, string(job.Kind), "failed")
		w.log.ErrorContext(ctx, "lifecycle job failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		job.Attempts++
		if rerr := w.queue.Retry(ctx, job, w.now().Add(w.config.MaxBackoff)); rerr != nil {
			w.log.ErrorContext(ctx, "failed to reschedule job", zap.String("job_id", job.ID), zap.Error(rerr))
		}
	}
}

func (w *LifecycleWorker) ack(ctx context.Context, job domain.LifecycleJob) {
	if err := w.queue.Ack(ctx, job.ID); err != nil {
		// the lease expires and the job is redelivered; Apply is idempotent
		w.log.WarnContext(ctx, "failed to ack lifecycle job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (w *LifecycleWorker) count(applied bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if applied {
		w.applied++
	} else {
		w.skipped++
	}
}

func (w *LifecycleWorker) onDeadLetter(msg *retry.DLQMessage) {
	w.mu.Lock()
	w.deadLettered++
	w.mu.Unlock()

	metrics.RecordDeadLetter(context.Background(), msg.Kind)
	w.log.Error("lifecycle job dead-lettered",
		zap.String("job_id", msg.ID),
		zap.Int("attempts", msg.Attempts),
		zap.String("error", msg.Error),
	)
}

// GetStats returns worker statistics
func (w *LifecycleWorker) GetStats() *LifecycleWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &LifecycleWorkerStats{
		IsRunning:    w.running,
		Applied:      w.applied,
		Skipped:      w.skipped,
		DeadLettered: w.deadLettered,
		LastPollTime: w.lastPollTime,
	}
}

// LifecycleWorkerStats contains worker statistics
type LifecycleWorkerStats struct {
	IsRunning    bool      `json:"is_running"`
	Applied      int64     `json:"applied"`
	Skipped      int64     `json:"skipped"`
	DeadLettered int64     `json:"dead_lettered"`
	LastPollTime time.Time `json:"last_poll_time"`
}
