// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	WalletsPolled     prometheus.Counter
	PositionsEmitted  prometheus.Counter
	PositionsDedup    prometheus.Counter
	PositionsFiltered prometheus.Counter
	IngestErrors      *prometheus.CounterVec

	// Detection metrics
	SignalsCreated     *prometheus.CounterVec
	QuorumEvaluations  prometheus.Counter
	CooldownSuppressed prometheus.Counter

	// Monitor metrics
	SweepsTotal   *prometheus.CounterVec
	TargetsHit    prometheus.Counter
	StopsHit      prometheus.Counter
	SignalsClosed *prometheus.CounterVec
	ActiveSignals prometheus.Gauge

	// Provider metrics
	ProviderCallLatency *prometheus.HistogramVec
	ProviderErrors      *prometheus.CounterVec
	PriceFeedStaleness  prometheus.Gauge
	BreakerState        prometheus.Gauge

	// Queue metrics
	MessagesPublished *prometheus.CounterVec
	MessagesAcked     *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec

	// Notification metrics
	NotificationsSent   *prometheus.CounterVec
	NotificationRetries prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPoll  prometheus.Gauge
	LastSuccessfulSweep prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "perp_signal_engine"
	}

	return &Metrics{
		// Ingestion metrics
		WalletsPolled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "wallets_polled_total",
			Help:      "Total number of wallet snapshot polls",
		}),
		PositionsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "positions_emitted_total",
			Help:      "Total number of position-open events emitted",
		}),
		PositionsDedup: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "positions_deduplicated_total",
			Help:      "Total number of snapshot entries dropped by idempotency key",
		}),
		PositionsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "positions_filtered_total",
			Help:      "Total number of snapshot entries dropped by instrument/size/leverage filters",
		}),
		IngestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by type",
		}, []string{"error_type"}),

		// Detection metrics
		SignalsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "signals_created_total",
			Help:      "Total number of signals created by direction",
		}, []string{"direction"}),
		QuorumEvaluations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "quorum_evaluations_total",
			Help:      "Total number of consensus window evaluations",
		}),
		CooldownSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "cooldown_suppressed_total",
			Help:      "Total number of signal creations suppressed by the cooldown",
		}),

		// Monitor metrics
		SweepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "sweeps_total",
			Help:      "Total number of sweep passes by status",
		}, []string{"status"}),
		TargetsHit: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "targets_hit_total",
			Help:      "Total number of take-profit rungs marked hit",
		}),
		StopsHit: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "stops_hit_total",
			Help:      "Total number of signals closed at stop-loss",
		}),
		SignalsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "signals_closed_total",
			Help:      "Total number of signals closed by terminal status",
		}, []string{"status"}),
		ActiveSignals: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "active_signals",
			Help:      "Current number of OPEN and PARTIAL_TP signals",
		}),

		// Provider metrics
		ProviderCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "method"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Total number of provider errors by source and method",
		}, []string{"source", "method"}),
		PriceFeedStaleness: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "price_feed_staleness_seconds",
			Help:      "Age of the newest cached websocket mark price",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "breaker_state",
			Help:      "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),

		// Queue metrics
		MessagesPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_published_total",
			Help:      "Total number of messages published by stream",
		}, []string{"stream"}),
		MessagesAcked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_acked_total",
			Help:      "Total number of messages acknowledged by stream",
		}, []string{"stream"}),
		MessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_dropped_total",
			Help:      "Total number of unparseable messages dropped by stream",
		}, []string{"stream"}),

		// Notification metrics
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notifications delivered by event type",
		}, []string{"type"}),
		NotificationRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "retries_total",
			Help:      "Total number of notification sends returned for redelivery",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPoll: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of the last successful wallet poll cycle",
		}),
		LastSuccessfulSweep: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of the last successful monitor sweep",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordWalletPolled increments the wallets polled counter.
func RecordWalletPolled() {
	DefaultMetrics.WalletsPolled.Inc()
}

// RecordIngestResult records the outcome counts of one wallet ingestion pass.
func RecordIngestResult(emitted, duplicate, filtered int) {
	DefaultMetrics.PositionsEmitted.Add(float64(emitted))
	DefaultMetrics.PositionsDedup.Add(float64(duplicate))
	DefaultMetrics.PositionsFiltered.Add(float64(filtered))
}

// RecordIngestError records an ingestion error.
func RecordIngestError(errorType string) {
	DefaultMetrics.IngestErrors.WithLabelValues(errorType).Inc()
}

// RecordSignalCreated increments the signals created counter.
func RecordSignalCreated(direction string) {
	DefaultMetrics.SignalsCreated.WithLabelValues(direction).Inc()
}

// RecordSweep records one sweep pass and its state changes.
func RecordSweep(ok bool, targetsHit, stopsHit, completed int) {
	status := "ok"
	if !ok {
		status = "error"
	}
	DefaultMetrics.SweepsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.TargetsHit.Add(float64(targetsHit))
	DefaultMetrics.StopsHit.Add(float64(stopsHit))
	if stopsHit > 0 {
		DefaultMetrics.SignalsClosed.WithLabelValues("SL_HIT").Add(float64(stopsHit))
	}
	if completed > 0 {
		DefaultMetrics.SignalsClosed.WithLabelValues("TP_HIT").Add(float64(completed))
	}
}

// UpdateActiveSignals updates the active signal gauge.
func UpdateActiveSignals(count int) {
	DefaultMetrics.ActiveSignals.Set(float64(count))
}

// RecordProviderCall records latency and outcome of one provider call.
func RecordProviderCall(source, method string, seconds float64, err error) {
	DefaultMetrics.ProviderCallLatency.WithLabelValues(source, method).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderErrors.WithLabelValues(source, method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateBreakerState updates the provider breaker state gauge.
func UpdateBreakerState(state int) {
	DefaultMetrics.BreakerState.Set(float64(state))
}

// RecordNotificationSent increments the notifications sent counter.
func RecordNotificationSent(eventType string) {
	DefaultMetrics.NotificationsSent.WithLabelValues(eventType).Inc()
}
