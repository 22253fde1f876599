// Package metrics registers the Prometheus instrumentation emitted by every
// component of the arbitrage core, grounded on the teacher's
// CircuitBreakerMetrics/WorkerPoolMetrics pattern but backed by real
// prometheus/client_golang collectors registered via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arbicore"

// Core is the registry of all counters/gauges/histograms emitted by C1-C5.
// One Core is constructed per process and threaded by constructor injection
// into every component, mirroring the teacher's factory-struct pattern.
type Core struct {
	// C1 Feed Client
	FeedReconnects     *prometheus.CounterVec
	FeedMessagesDropped *prometheus.CounterVec
	FeedHeartbeatAge   *prometheus.GaugeVec

	// C2 Book Manager
	BookApplyLatency   prometheus.Histogram
	BookSnapshotLatency prometheus.Histogram
	BookDesyncTotal    *prometheus.CounterVec
	BookCrossedTotal   *prometheus.CounterVec

	// C3 VWAP Engine
	VWAPQualityTotal   *prometheus.CounterVec

	// C4 Allocator
	AllocatorSolveLatency prometheus.Histogram
	AllocatorTimeoutTotal prometheus.Counter
	AllocatorPlanProfit   prometheus.Histogram

	// C5 Atomic Executor
	ExecutionLatency    prometheus.Histogram
	ExecutionOutcomes   *prometheus.CounterVec
	RollbackTotal       prometheus.Counter
	LegFillRate         prometheus.Histogram
	ConsecutiveFailures prometheus.Gauge

	// Alerts
	AlertsTotal *prometheus.CounterVec
}

// New registers and returns a Core against reg. Pass a
// distinct reg (e.g. prometheus.NewRegistry()) in tests to avoid collisions
// across parallel test processes.
func New(reg prometheus.Registerer) *Core {
	factory := promauto.With(reg)

	return &Core{
		FeedReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "reconnects_total",
			Help: "Number of reconnect attempts per venue.",
		}, []string{"venue"}),
		FeedMessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "messages_dropped_total",
			Help: "Messages discarded, labeled by reason (malformed, unknown discriminator, or awaiting snapshot).",
		}, []string{"venue", "reason"}),
		FeedHeartbeatAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "heartbeat_age_seconds",
			Help: "Seconds since the last message received from a venue.",
		}, []string{"venue"}),

		BookApplyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "book", Name: "apply_latency_seconds",
			Help:    "Latency of a single apply() call.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us .. ~82ms
		}),
		BookSnapshotLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "book", Name: "snapshot_latency_seconds",
			Help:    "Latency of a single snapshot() call.",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 14),
		}),
		BookDesyncTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "book", Name: "desync_total",
			Help: "Desync events (delta-before-snapshot or fingerprint mismatch).",
		}, []string{"asset"}),
		BookCrossedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "book", Name: "crossed_total",
			Help: "CrossedBook violations detected after apply.",
		}, []string{"asset"}),

		VWAPQualityTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "vwap", Name: "quality_total",
			Help: "VWAP results by quality tag.",
		}, []string{"quality"}),

		AllocatorSolveLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "allocator", Name: "solve_latency_seconds",
			Help:    "Allocator solve() wall-clock latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms .. ~256ms
		}),
		AllocatorTimeoutTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "allocator", Name: "timeout_total",
			Help: "Solves that hit the solve budget and returned an approximate plan.",
		}),
		AllocatorPlanProfit: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "allocator", Name: "plan_expected_profit",
			Help:    "Expected net profit of emitted plans.",
			Buckets: prometheus.DefBuckets,
		}),

		ExecutionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "execution", Name: "latency_seconds",
			Help:    "Plan execution wall-clock latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms .. ~512ms
		}),
		ExecutionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "execution", Name: "outcomes_total",
			Help: "Terminal trade outcomes.",
		}, []string{"overall_state"}),
		RollbackTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "execution", Name: "rollback_total",
			Help: "Trades that rolled back.",
		}),
		LegFillRate: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "execution", Name: "leg_fill_rate",
			Help:    "Per-leg filled_qty/target_qty.",
			Buckets: []float64{0, 0.25, 0.5, 0.75, 0.9, 0.99, 1.0},
		}),
		ConsecutiveFailures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "execution", Name: "consecutive_failures",
			Help: "Current consecutive execution failure streak (kill switch trigger).",
		}),

		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_total",
			Help: "Alerts raised, by kind.",
		}, []string{"kind"}),
	}
}
