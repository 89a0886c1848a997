// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestrator.
type Metrics struct {
	// Signal metrics
	SignalsProcessed  *prometheus.CounterVec
	SignalsRejected   *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	TickersTracked    prometheus.Gauge
	TickersInCooldown prometheus.Gauge

	// Scheduler metrics
	TasksEnqueued    *prometheus.CounterVec
	TasksDispatched  *prometheus.CounterVec
	TasksRejected    prometheus.Counter
	QueueDepth       prometheus.Gauge
	ResourceMemoryMB prometheus.Gauge
	ResourceTasks    prometheus.Gauge

	// Worker metrics
	ActiveWorkers   prometheus.Gauge
	FailedWorkers   prometheus.Gauge
	ScaleEvents     *prometheus.CounterVec
	WorkerLoad      *prometheus.GaugeVec
	TaskLatency     prometheus.Histogram
	TickerReassigns prometheus.Counter

	// Risk metrics
	TradesApproved prometheus.Counter
	TradesRejected *prometheus.CounterVec
	PortfolioHeat  prometheus.Gauge
	DrawdownPct    prometheus.Gauge
	TradingHalted  prometheus.Gauge

	// Persistence metrics
	CheckpointsCreated *prometheus.CounterVec
	PersistErrors      *prometheus.CounterVec
	RecoveryDuration   prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ticker_orchestrator"
	}

	return &Metrics{
		// Signal metrics
		SignalsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "processed_total",
			Help:      "Total number of market updates applied per ticker",
		}, []string{"ticker"}),
		SignalsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "rejected_total",
			Help:      "Total number of updates rejected by validation",
		}, []string{"reason"}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "state_transitions_total",
			Help:      "Total number of ticker status transitions",
		}, []string{"from", "to"}),
		TickersTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "tickers_tracked",
			Help:      "Current number of tracked tickers",
		}),
		TickersInCooldown: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "tickers_in_cooldown",
			Help:      "Current number of tickers in cooldown",
		}),

		// Scheduler metrics
		TasksEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_enqueued_total",
			Help:      "Total number of tasks enqueued by type",
		}, []string{"type"}),
		TasksDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_dispatched_total",
			Help:      "Total number of tasks dispatched to workers by type",
		}, []string{"type"}),
		TasksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_rejected_total",
			Help:      "Total number of tasks rejected by a full queue",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Current number of queued tasks",
		}),
		ResourceMemoryMB: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "resource_memory_mb",
			Help:      "Memory currently reserved by admitted tasks",
		}),
		ResourceTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "resource_active_tasks",
			Help:      "Tasks currently admitted past resource control",
		}),

		// Worker metrics
		ActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "active",
			Help:      "Current number of active workers",
		}),
		FailedWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "failed",
			Help:      "Current number of failed workers",
		}),
		ScaleEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "scale_events_total",
			Help:      "Total number of scaling decisions by direction",
		}, []string{"direction"}),
		WorkerLoad: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "load",
			Help:      "Per-worker load fraction",
		}, []string{"worker_id"}),
		TaskLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "task_latency_seconds",
			Help:      "Task execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		TickerReassigns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "ticker_reassigns_total",
			Help:      "Total number of ticker reassignments between workers",
		}),

		// Risk metrics
		TradesApproved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "trades_approved_total",
			Help:      "Total number of approved trade validations",
		}),
		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "trades_rejected_total",
			Help:      "Total number of rejected trade validations by reason",
		}, []string{"reason"}),
		PortfolioHeat: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "portfolio_heat",
			Help:      "Capital at risk as a fraction of equity",
		}),
		DrawdownPct: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "drawdown_pct",
			Help:      "Current drawdown from peak equity",
		}),
		TradingHalted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "trading_halted",
			Help:      "1 when trading is halted, 0 otherwise",
		}),

		// Persistence metrics
		CheckpointsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "checkpoints_created_total",
			Help:      "Total number of checkpoints created by type",
		}, []string{"type"}),
		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "errors_total",
			Help:      "Total number of persistence errors by tier",
		}, []string{"tier"}),
		RecoveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "recovery_duration_seconds",
			Help:      "Startup state recovery duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
