package storage

import (
	"context"

	"ticker-orchestrator/internal/domain"
)

// OrchestratorStateStore provides access to orchestrator_state storage.
type OrchestratorStateStore interface {
	// SaveSnapshot persists the orchestrator row and all ticker rows as a
	// single unit. Either everything lands or nothing does.
	SaveSnapshot(ctx context.Context, state *domain.OrchestratorState, tickers []*domain.TickerState) error

	// Get retrieves orchestrator state by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, orchestratorID string) (*domain.OrchestratorState, error)
}

// TickerStateStore provides access to ticker_states storage.
type TickerStateStore interface {
	// Upsert inserts or replaces the state row for (orchestrator_id, ticker).
	Upsert(ctx context.Context, orchestratorID string, t *domain.TickerState) error

	// Get retrieves the state for a single ticker. Returns ErrNotFound if not exists.
	Get(ctx context.Context, orchestratorID, ticker string) (*domain.TickerState, error)

	// GetByOrchestrator retrieves all ticker rows for an orchestrator, ordered by ticker ASC.
	GetByOrchestrator(ctx context.Context, orchestratorID string) ([]*domain.TickerState, error)
}

// CheckpointStore provides access to system_checkpoints storage.
type CheckpointStore interface {
	// Insert adds a new checkpoint. Returns ErrDuplicateKey if checkpoint_id exists.
	Insert(ctx context.Context, cp *domain.SystemCheckpoint) error

	// Latest retrieves the most recent checkpoint for an orchestrator.
	// Returns ErrNotFound when no checkpoint exists.
	Latest(ctx context.Context, orchestratorID string) (*domain.SystemCheckpoint, error)

	// List retrieves checkpoints for an orchestrator, newest first, up to limit.
	List(ctx context.Context, orchestratorID string, limit int) ([]*domain.SystemCheckpoint, error)

	// DeleteOlderThan removes checkpoints created before cutoff (Unix ms).
	// Returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, orchestratorID string, cutoff int64) (int64, error)
}

// TransitionStore provides access to state_transitions storage.
type TransitionStore interface {
	// Insert adds a single transition record.
	Insert(ctx context.Context, tr *domain.StateTransition) error

	// InsertBulk adds multiple transitions in one batch.
	InsertBulk(ctx context.Context, trs []*domain.StateTransition) error

	// GetByTicker retrieves transitions for a ticker within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTicker(ctx context.Context, ticker string, start, end int64) ([]*domain.StateTransition, error)

	// DeleteOlderThan removes transitions recorded before cutoff (Unix ms).
	// Returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// SignalStore provides access to enhanced_signals storage.
type SignalStore interface {
	// Insert adds a signal record. Returns ErrDuplicateKey if signal_id exists.
	Insert(ctx context.Context, s *domain.SignalRecord) error

	// InsertBulk adds multiple signal records in one batch.
	InsertBulk(ctx context.Context, signals []*domain.SignalRecord) error

	// GetByTicker retrieves signals for a ticker within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTicker(ctx context.Context, ticker string, start, end int64) ([]*domain.SignalRecord, error)

	// DeleteOlderThan removes signal records recorded before cutoff (Unix ms).
	// Returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// AnalyticsStore provides access to performance_analytics storage.
type AnalyticsStore interface {
	// InsertBulk adds multiple performance snapshots in one batch.
	InsertBulk(ctx context.Context, snaps []*domain.PerformanceSnapshot) error

	// GetByTimeRange retrieves snapshots within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PerformanceSnapshot, error)

	// DeleteOlderThan removes snapshots recorded before cutoff (Unix ms).
	// Returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}
