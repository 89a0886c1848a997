package domain

// TaskType classifies queued work. Ordering of base priority is
// trade execution > risk check > position update > signal processing >
// market data update > analytics.
type TaskType string

const (
	TaskTradeExecution   TaskType = "TRADE_EXECUTION"
	TaskRiskCheck        TaskType = "RISK_CHECK"
	TaskPositionUpdate   TaskType = "POSITION_UPDATE"
	TaskSignalProcessing TaskType = "SIGNAL_PROCESSING"
	TaskMarketDataUpdate TaskType = "MARKET_DATA_UPDATE"
	TaskAnalytics        TaskType = "ANALYTICS"
)

// ResourceCost is the declared resource footprint of one task. Admission
// control checks it against configured ceilings; the caller must release
// the same cost on every exit path.
type ResourceCost struct {
	MemoryMB     float64
	CPU          float64 // fraction of one core
	NetworkCalls int
}

// Task is one unit of pending work for a ticker.
type Task struct {
	ID         string
	Ticker     string
	Type       TaskType
	Urgent     bool
	Cost       ResourceCost
	EnqueuedAt int64 // Unix ms
	Payload    any   // opaque to the scheduler
}

// MarketUpdate is an inbound per-ticker market/signal update.
type MarketUpdate struct {
	Ticker     string  `json:"ticker"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	Confidence float64 `json:"confidence"`
	Conviction float64 `json:"conviction"`
	Timestamp  int64   `json:"timestamp"` // Unix ms
}
