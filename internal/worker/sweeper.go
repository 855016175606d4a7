package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/service"
	"github.com/prohmpiriya/pitch-booking/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweeperConfig contains configuration for the sweeper
type SweeperConfig struct {
	// Schedule is a cron expression, e.g. "@every 1m" or "*/5 * * * *"
	Schedule string
	// BatchSize caps the transitions of each kind applied per run
	BatchSize int
	// Timeout bounds a single run
	Timeout time.Duration
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Schedule:  "@every 1m",
		BatchSize: 200,
		Timeout:   30 * time.Second,
	}
}

// Sweeper periodically applies overdue transitions straight from the store,
// covering jobs the queue lost or never received
type Sweeper struct {
	lifecycle service.LifecycleService
	config    *SweeperConfig
	cron      *cron.Cron
	now       func() time.Time
	log       *logger.Logger

	mu        sync.Mutex
	running   bool
	repaired  int64
	lastRunAt time.Time
}

// NewSweeper creates a new sweeper
func NewSweeper(lifecycle service.LifecycleService, config *SweeperConfig) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	log := logger.Get()
	cronLogger := cron.PrintfLogger(zap.NewStdLog(log.Zap()))

	return &Sweeper{
		lifecycle: lifecycle,
		config:    config,
		// runs never overlap; a slow run delays the next one
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		now: time.Now,
		log: log,
	}
}

// Start registers the sweep job and starts the scheduler
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
	}
	s.cron.Start()
	s.running = true

	s.log.Info("Sweeper started", zap.String("schedule", s.config.Schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("Sweeper stopped")
}

// RunOnce performs one sweep and reports how many bookings were repaired
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	now := s.now()
	n, err := s.lifecycle.Sweep(ctx, now, s.config.BatchSize)

	s.mu.Lock()
	s.lastRunAt = now
	s.repaired += int64(n)
	s.mu.Unlock()

	if err != nil {
		s.log.ErrorContext(ctx, "sweep failed", zap.Int("repaired", n), zap.Error(err))
		return n
	}
	if n > 0 {
		s.log.InfoContext(ctx, "sweep repaired overdue bookings", zap.Int("repaired", n))
	}
	return n
}

// SweeperStats contains sweeper statistics
type SweeperStats struct {
	IsRunning bool      `json:"is_running"`
	Repaired  int64     `json:"repaired"`
	LastRunAt time.Time `json:"last_run_at"`
}

// GetStats returns sweeper statistics
func (s *Sweeper) GetStats() *SweeperStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SweeperStats{IsRunning: s.running, Repaired: s.repaired, LastRunAt: s.lastRunAt}
}
