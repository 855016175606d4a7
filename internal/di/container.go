package di

import (
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/handler"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/service"
	"github.com/prohmpiriya/pitch-booking/internal/worker"
	"github.com/prohmpiriya/pitch-booking/pkg/retry"
)

// Container holds all dependencies for the pitch booking service
type Container struct {
	// Storage
	Repos *repository.Repositories
	Tx    repository.Transactor
	Jobs  repository.JobQueue

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	AvailabilityService service.AvailabilityService
	ReservationService  service.ReservationService
	BookingService      service.BookingService
	VenueService        service.VenueService
	LifecycleService    service.LifecycleService

	// Handlers
	HealthHandler  *handler.HealthHandler
	PitchHandler   *handler.PitchHandler
	BookingHandler *handler.BookingHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Repos          *repository.Repositories
	Tx             repository.Transactor
	Jobs           repository.JobQueue
	EventPublisher service.EventPublisher
	// HealthChecks are reported by /ready; nil entries show as not configured
	HealthChecks map[string]handler.HealthChecker

	Availability *service.AvailabilityServiceConfig
	Reservation  *service.ReservationServiceConfig
	Booking      *service.BookingServiceConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		Repos:          cfg.Repos,
		Tx:             cfg.Tx,
		Jobs:           cfg.Jobs,
		EventPublisher: cfg.EventPublisher,
	}
	if c.EventPublisher == nil {
		c.EventPublisher = service.NewNoOpEventPublisher()
	}

	// Initialize services
	c.AvailabilityService = service.NewAvailabilityService(c.Repos, cfg.Availability)
	c.ReservationService = service.NewReservationService(c.Repos, c.Tx, c.Jobs, c.EventPublisher, cfg.Reservation)
	c.BookingService = service.NewBookingService(c.Repos, c.Tx, c.EventPublisher, cfg.Booking)
	c.VenueService = service.NewVenueService(c.Repos.Venues)

	var now func() time.Time
	if cfg.Reservation != nil {
		now = cfg.Reservation.Now
	}
	c.LifecycleService = service.NewLifecycleService(c.Repos, c.Tx, c.EventPublisher, now)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(cfg.HealthChecks)
	c.PitchHandler = handler.NewPitchHandler(c.AvailabilityService, c.VenueService)
	c.BookingHandler = handler.NewBookingHandler(c.ReservationService, c.BookingService)

	return c
}

// NewLifecycleWorker builds a queue worker over the container's lifecycle service
func (c *Container) NewLifecycleWorker(dlq retry.DLQPublisher, cfg *worker.LifecycleWorkerConfig) *worker.LifecycleWorker {
	return worker.NewLifecycleWorker(c.Jobs, c.LifecycleService, dlq, cfg)
}

// NewSweeper builds the overdue-transition sweeper
func (c *Container) NewSweeper(cfg *worker.SweeperConfig) *worker.Sweeper {
	return worker.NewSweeper(c.LifecycleService, cfg)
}
