// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	DynamicsFetched      prometheus.Counter
	DynamicsDispatched   prometheus.Counter
	DynamicsStale        prometheus.Counter
	BackupPollCycles     prometheus.Counter
	LiveStatusAnomalies  prometheus.Counter
	FollowsSucceeded     prometheus.Counter
	PollFailures         *prometheus.CounterVec // labels: poller, class
	FollowsFailed        *prometheus.CounterVec // labels: class
	LiveTransitions      *prometheus.CounterVec // labels: source, transition
	EventsPublished      *prometheus.CounterVec // labels: kind
	EventHandlerFailures *prometheus.CounterVec // labels: kind

	// Histograms (seconds)
	DynamicPollDuration prometheus.Observer
	BackupPollDuration  prometheus.Observer

	// Gauges
	FollowQueueDepth prometheus.Gauge
	DedupEntries     prometheus.Gauge
	WatchedSubjects  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		DynamicsFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "starwatch_dynamics_fetched_total", Help: "Dynamic feed items fetched"})
		DynamicsDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "starwatch_dynamics_dispatched_total", Help: "Dynamic update events published"})
		DynamicsStale = promauto.NewCounter(prometheus.CounterOpts{Name: "starwatch_dynamics_stale_total", Help: "New dynamics suppressed by the freshness window"})
		BackupPollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "starwatch_backup_poll_cycles_total", Help: "Backup live poll cycles run"})
		LiveStatusAnomalies = promauto.NewCounter(prometheus.CounterOpts{Name: "starwatch_live_status_anomalies_total", Help: "Backup reconciliations that found no persisted record"})
		FollowsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "starwatch_follows_succeeded_total", Help: "Auto-follow actions that succeeded"})
		PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "starwatch_poll_failures_total", Help: "Failed poll cycles"}, []string{"poller", "class"})
		FollowsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "starwatch_follows_failed_total", Help: "Auto-follow actions that failed"}, []string{"class"})
		LiveTransitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "starwatch_live_transitions_total", Help: "Live status transitions by detecting source"}, []string{"source", "transition"})
		EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Name: "starwatch_events_published_total", Help: "Events published on the bus"}, []string{"kind"})
		EventHandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "starwatch_event_handler_failures_total", Help: "Event handlers that returned an error"}, []string{"kind"})
		DynamicPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "starwatch_dynamic_poll_duration_seconds", Help: "Dynamic poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		BackupPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "starwatch_backup_poll_duration_seconds", Help: "Backup live poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		FollowQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Name: "starwatch_follow_queue_depth", Help: "Subjects waiting to be followed"})
		DedupEntries = promauto.NewGauge(prometheus.GaugeOpts{Name: "starwatch_dynamic_dedup_entries", Help: "Dynamic ids held in the dedup set"})
		WatchedSubjects = promauto.NewGauge(prometheus.GaugeOpts{Name: "starwatch_watched_subjects", Help: "Subjects in the watch set"})
	})
}

// Inc increments c if it is registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncAdd adds n to c if it is registered.
func IncAdd(c prometheus.Counter, n int) {
	if c != nil && n > 0 {
		c.Add(float64(n))
	}
}

// IncVec increments the labelled counter if it is registered.
func IncVec(v *prometheus.CounterVec, labels ...string) {
	if v != nil {
		v.WithLabelValues(labels...).Inc()
	}
}

// SetGauge sets g if it is registered.
func SetGauge(g prometheus.Gauge, n int) {
	if g != nil {
		g.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
