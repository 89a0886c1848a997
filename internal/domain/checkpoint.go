package domain

import "encoding/json"

// CheckpointType identifies why a checkpoint was taken.
type CheckpointType string

const (
	CheckpointStartup       CheckpointType = "STARTUP"
	CheckpointPeriodic      CheckpointType = "PERIODIC"
	CheckpointShutdown      CheckpointType = "SHUTDOWN"
	CheckpointErrorRecovery CheckpointType = "ERROR_RECOVERY"
)

// SystemCheckpoint is a durable full-system snapshot. Immutable once
// written; later checkpoints supersede rather than overwrite.
// Corresponds to one row in system_checkpoints (append-only).
type SystemCheckpoint struct {
	ID             string
	OrchestratorID string
	Type           CheckpointType
	SystemState    json.RawMessage // marshaled OrchestratorState
	TickerStates   json.RawMessage // marshaled map[string]*TickerState
	ActiveTasks    json.RawMessage // marshaled pending task summaries
	Configuration  json.RawMessage // config snapshot at checkpoint time
	Performance    json.RawMessage // marshaled PerformanceSnapshot
	CreatedAt      int64           // Unix ms
}

// OrchestratorState is the aggregate orchestrator row persisted in the
// critical tier. One row per orchestrator instance.
type OrchestratorState struct {
	OrchestratorID string
	ActiveTickers  int
	TotalSignals   int64
	ActiveTrades   int
	PortfolioHeat  float64
	Health         string
	TradingHalted  bool
	UpdatedAt      int64 // Unix ms
}
