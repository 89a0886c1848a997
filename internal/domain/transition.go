package domain

// StateTransition is an immutable record of one ticker status change.
// Corresponds to one row in state_transitions (append-only).
type StateTransition struct {
	Ticker     string
	From       TickerStatus
	To         TickerStatus
	DurationMs int64 // time spent in the previous status
	Timestamp  int64 // Unix ms
}

// SignalRecord captures one processed market/signal update for analytics.
// Corresponds to one row in enhanced_signals (append-only).
type SignalRecord struct {
	SignalID   string // deterministic hash, dedup key
	Ticker     string
	Confidence float64
	Conviction float64
	Status     TickerStatus // status after the update was applied
	Price      float64
	Volume     float64
	Timestamp  int64 // Unix ms
}

// PerformanceSnapshot is a point-in-time system performance sample.
// Corresponds to one row in performance_analytics (append-only).
type PerformanceSnapshot struct {
	OrchestratorID   string
	TickersTracked   int
	SignalsProcessed int64
	QueueDepth       int
	ActiveWorkers    int
	FailedWorkers    int
	TasksInFlight    int
	AvgLatencyMs     float64
	Timestamp        int64 // Unix ms
}
