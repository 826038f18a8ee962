package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Approval counters
	EventsSubmitted   *telemetry.Counter
	EventsTransitions *telemetry.Counter

	// Ledger rejections
	ConflictRejections *telemetry.Counter
	CapacityRejections *telemetry.Counter

	// Allocation counters
	UnitsReserved  *telemetry.Counter
	UnitsReleased  *telemetry.Counter
	CapacityResets *telemetry.Counter

	// Notification relay
	NotificationsPublished *telemetry.Counter
	NotificationsDropped   *telemetry.Counter
	NotificationsFailed    *telemetry.Counter

	// Histograms
	OperationDuration *telemetry.Histogram

	// Gauges
	ActiveEvents    *telemetry.UpDownCounter
	StreamListeners *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all ledger metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		dst  **telemetry.Counter
		opts telemetry.MetricOpts
	}{
		{&EventsSubmitted, telemetry.MetricOpts{Name: "ledger_events_submitted_total", Description: "Events submitted for approval", Unit: "1"}},
		{&EventsTransitions, telemetry.MetricOpts{Name: "ledger_event_transitions_total", Description: "Applied status transitions by target status", Unit: "1"}},
		{&ConflictRejections, telemetry.MetricOpts{Name: "ledger_conflict_rejections_total", Description: "Submissions rejected because the venue was already booked", Unit: "1"}},
		{&CapacityRejections, telemetry.MetricOpts{Name: "ledger_capacity_rejections_total", Description: "Submissions rejected for insufficient resource capacity", Unit: "1"}},
		{&UnitsReserved, telemetry.MetricOpts{Name: "ledger_units_reserved_total", Description: "Resource units reserved by submissions", Unit: "1"}},
		{&UnitsReleased, telemetry.MetricOpts{Name: "ledger_units_released_total", Description: "Resource units returned by terminal transitions", Unit: "1"}},
		{&CapacityResets, telemetry.MetricOpts{Name: "ledger_capacity_resets_total", Description: "Administrative capacity resets", Unit: "1"}},
		{&NotificationsPublished, telemetry.MetricOpts{Name: "notifications_published_total", Description: "Notifications delivered to a sink", Unit: "1"}},
		{&NotificationsDropped, telemetry.MetricOpts{Name: "notifications_dropped_total", Description: "Notifications dropped by a full subscriber buffer", Unit: "1"}},
		{&NotificationsFailed, telemetry.MetricOpts{Name: "notifications_failed_total", Description: "Notifications that exhausted delivery retries", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	OperationDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "ledger_operation_duration_seconds",
		Description: "Ledger operation latency by operation and outcome",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	ActiveEvents, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "ledger_active_events",
		Description: "Events in a non-terminal status",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	StreamListeners, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "notification_stream_listeners",
		Description: "Connected notification stream clients",
		Unit:        "1",
	})
	return err
}

// ObserveOperation records the latency of a ledger operation
func ObserveOperation(ctx context.Context, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	OperationDuration.Record(ctx, time.Since(start).Seconds(),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
}

// RecordTransition counts an applied transition and adjusts the active gauge
func RecordTransition(ctx context.Context, to string, terminal bool) {
	EventsTransitions.Inc(ctx, attribute.String("status", to))
	if terminal {
		ActiveEvents.Add(ctx, -1)
	}
}
