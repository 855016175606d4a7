package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsRejected  *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	StatusChanges     *telemetry.Counter

	// Lifecycle counters
	JobsProcessed    *telemetry.Counter
	JobsDeadLettered *telemetry.Counter
	SweeperRepairs   *telemetry.Counter

	// Histograms
	BookingTxDuration    *telemetry.Histogram
	AvailabilityDuration *telemetry.Histogram

	// Gauges
	JobsInFlight *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&BookingsCreated, telemetry.MetricOpts{Name: "pitch_bookings_created_total", Description: "Bookings committed", Unit: "1"}},
		{&BookingsRejected, telemetry.MetricOpts{Name: "pitch_bookings_rejected_total", Description: "Booking requests rejected by reason", Unit: "1"}},
		{&BookingsCancelled, telemetry.MetricOpts{Name: "pitch_bookings_cancelled_total", Description: "Bookings cancelled", Unit: "1"}},
		{&StatusChanges, telemetry.MetricOpts{Name: "pitch_booking_status_changes_total", Description: "Booking status transitions", Unit: "1"}},
		{&JobsProcessed, telemetry.MetricOpts{Name: "pitch_lifecycle_jobs_total", Description: "Lifecycle jobs processed by outcome", Unit: "1"}},
		{&JobsDeadLettered, telemetry.MetricOpts{Name: "pitch_lifecycle_jobs_dead_lettered_total", Description: "Lifecycle jobs moved to the dead letter queue", Unit: "1"}},
		{&SweeperRepairs, telemetry.MetricOpts{Name: "pitch_lifecycle_sweeper_repairs_total", Description: "Overdue transitions applied by the sweeper", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.target = counter
	}

	var err error
	BookingTxDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "pitch_booking_tx_duration_seconds",
		Description: "Duration of booking creation transactions",
		Unit:        "s",
	}, durationBuckets)
	if err != nil {
		return err
	}

	AvailabilityDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "pitch_availability_duration_seconds",
		Description: "Duration of availability computations",
		Unit:        "s",
	}, durationBuckets)
	if err != nil {
		return err
	}

	JobsInFlight, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "pitch_lifecycle_jobs_in_flight",
		Description: "Lifecycle jobs currently being processed",
		Unit:        "1",
	})
	return err
}

// RecordBookingCreated records committed bookings of one request
func RecordBookingCreated(ctx context.Context, targetKind, status string, count int, txSeconds float64) {
	BookingsCreated.Add(ctx, int64(count),
		attribute.String("target_type", targetKind),
		attribute.String("status", status),
	)
	BookingTxDuration.Record(ctx, txSeconds, attribute.String("outcome", "committed"))
}

// RecordBookingRejected records a failed booking request by reason
func RecordBookingRejected(ctx context.Context, reason string, txSeconds float64) {
	BookingsRejected.Inc(ctx, attribute.String("reason", reason))
	if txSeconds > 0 {
		BookingTxDuration.Record(ctx, txSeconds, attribute.String("outcome", reason))
	}
}

// RecordCancellation records a cancellation and whether a fee applied
func RecordCancellation(ctx context.Context, withFee bool) {
	BookingsCancelled.Inc(ctx, attribute.Bool("with_fee", withFee))
}

// RecordStatusChange records a status transition by origin (job, sweeper, staff)
func RecordStatusChange(ctx context.Context, from, to, origin string) {
	StatusChanges.Inc(ctx,
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("origin", origin),
	)
}

// RecordJob records one processed lifecycle job
func RecordJob(ctx context.Context, kind, outcome string) {
	JobsProcessed.Inc(ctx,
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
}

// RecordDeadLetter records a job that exhausted its retries
func RecordDeadLetter(ctx context.Context, kind string) {
	JobsDeadLettered.Inc(ctx, attribute.String("kind", kind))
}

// RecordSweeperRepair records transitions applied by the sweeper
func RecordSweeperRepair(ctx context.Context, kind string, count int) {
	SweeperRepairs.Add(ctx, int64(count), attribute.String("kind", kind))
}

// RecordAvailability records the duration of an availability computation
func RecordAvailability(ctx context.Context, targetKind string, seconds float64) {
	AvailabilityDuration.Record(ctx, seconds, attribute.String("target_type", targetKind))
}

// JobStarted and JobFinished track in-flight jobs
func JobStarted(ctx context.Context)  { JobsInFlight.Add(ctx, 1) }
func JobFinished(ctx context.Context) { JobsInFlight.Add(ctx, -1) }
