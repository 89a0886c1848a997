package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// Config holds retention settings for the persistence manager.
type Config struct {
	// CheckpointRetentionMs is how long checkpoints are kept. Zero disables pruning.
	CheckpointRetentionMs int64 `yaml:"checkpoint_retention_ms"`

	// AnalyticsRetentionMs is how long transition, signal and performance
	// rows are kept. Zero disables pruning.
	AnalyticsRetentionMs int64 `yaml:"analytics_retention_ms"`
}

// DefaultConfig returns retention defaults: transitions, signals and
// performance rows live for days, checkpoints for weeks.
func DefaultConfig() Config {
	return Config{
		CheckpointRetentionMs: 28 * 24 * 60 * 60 * 1000,
		AnalyticsRetentionMs:  7 * 24 * 60 * 60 * 1000,
	}
}

// Stores bundles the storage backends by durability tier. The critical
// tier (state, tickers, checkpoints) is required; the analytics tier
// (transitions, signals, analytics) may be nil and is written best-effort.
type Stores struct {
	State       storage.OrchestratorStateStore
	Tickers     storage.TickerStateStore
	Checkpoints storage.CheckpointStore

	Transitions storage.TransitionStore
	Signals     storage.SignalStore
	Analytics   storage.AnalyticsStore
}

// Manager coordinates tiered persistence: critical writes propagate
// errors, analytics writes are logged and swallowed.
type Manager struct {
	cfg    Config
	stores Stores
	clk    clock.Clock
	log    zerolog.Logger
}

// NewManager creates a persistence manager. Returns an error when any
// critical-tier store is missing.
func NewManager(cfg Config, stores Stores, clk clock.Clock, log zerolog.Logger) (*Manager, error) {
	if stores.State == nil || stores.Tickers == nil || stores.Checkpoints == nil {
		return nil, storage.ErrNotInitialized
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{
		cfg:    cfg,
		stores: stores,
		clk:    clk,
		log:    log.With().Str("component", "persistence").Logger(),
	}, nil
}

// PersistSnapshot writes the orchestrator row plus all ticker rows to the
// critical tier. A failure here is a real failure.
func (m *Manager) PersistSnapshot(ctx context.Context, state *domain.OrchestratorState, tickers []*domain.TickerState) error {
	if err := m.stores.State.SaveSnapshot(ctx, state, tickers); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// RecordTransitions writes transition history to the analytics tier.
// Failures are logged and swallowed.
func (m *Manager) RecordTransitions(ctx context.Context, trs []*domain.StateTransition) {
	if m.stores.Transitions == nil || len(trs) == 0 {
		return
	}
	if err := m.stores.Transitions.InsertBulk(ctx, trs); err != nil {
		m.log.Warn().Err(err).Int("count", len(trs)).Msg("failed to record state transitions")
	}
}

// RecordSignals writes signal records to the analytics tier.
// Duplicates and failures are logged and swallowed.
func (m *Manager) RecordSignals(ctx context.Context, signals []*domain.SignalRecord) {
	if m.stores.Signals == nil || len(signals) == 0 {
		return
	}
	if err := m.stores.Signals.InsertBulk(ctx, signals); err != nil {
		m.log.Warn().Err(err).Int("count", len(signals)).Msg("failed to record signals")
	}
}

// RecordPerformance writes a performance sample to the analytics tier.
// Failures are logged and swallowed.
func (m *Manager) RecordPerformance(ctx context.Context, snap *domain.PerformanceSnapshot) {
	if m.stores.Analytics == nil || snap == nil {
		return
	}
	if err := m.stores.Analytics.InsertBulk(ctx, []*domain.PerformanceSnapshot{snap}); err != nil {
		m.log.Warn().Err(err).Msg("failed to record performance snapshot")
	}
}

// CreateCheckpoint snapshots the full system into an immutable checkpoint
// row. The returned checkpoint carries the generated ID.
func (m *Manager) CreateCheckpoint(
	ctx context.Context,
	cpType domain.CheckpointType,
	state *domain.OrchestratorState,
	tickers map[string]*domain.TickerState,
	activeTasks []*domain.Task,
	configuration any,
	performance *domain.PerformanceSnapshot,
) (*domain.SystemCheckpoint, error) {
	if state == nil || state.OrchestratorID == "" {
		return nil, storage.ErrInvalidInput
	}

	systemState, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal system state: %w", err)
	}
	tickerStates, err := json.Marshal(tickers)
	if err != nil {
		return nil, fmt.Errorf("marshal ticker states: %w", err)
	}
	tasks, err := json.Marshal(activeTasks)
	if err != nil {
		return nil, fmt.Errorf("marshal active tasks: %w", err)
	}
	cfg, err := json.Marshal(configuration)
	if err != nil {
		return nil, fmt.Errorf("marshal configuration: %w", err)
	}
	perf, err := json.Marshal(performance)
	if err != nil {
		return nil, fmt.Errorf("marshal performance: %w", err)
	}

	cp := &domain.SystemCheckpoint{
		ID:             uuid.NewString(),
		OrchestratorID: state.OrchestratorID,
		Type:           cpType,
		SystemState:    systemState,
		TickerStates:   tickerStates,
		ActiveTasks:    tasks,
		Configuration:  cfg,
		Performance:    perf,
		CreatedAt:      m.clk.NowMilli(),
	}

	if err := m.stores.Checkpoints.Insert(ctx, cp); err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}

	m.log.Info().
		Str("checkpoint_id", cp.ID).
		Str("type", string(cpType)).
		Int("tickers", len(tickers)).
		Msg("checkpoint created")
	return cp, nil
}

// RecoveredState is the merged view produced by Recover.
type RecoveredState struct {
	State         *domain.OrchestratorState
	Tickers       map[string]*domain.TickerState
	Checkpoint    *domain.SystemCheckpoint // nil on cold start
	FromColdStart bool
}

// Recover rebuilds orchestrator state from the latest checkpoint, then
// overlays any live ticker rows that are fresher than the checkpoint.
// A system with no checkpoint and no rows recovers to an empty valid
// state rather than an error.
func (m *Manager) Recover(ctx context.Context, orchestratorID string) (*RecoveredState, error) {
	if orchestratorID == "" {
		return nil, storage.ErrInvalidInput
	}

	rec := &RecoveredState{
		State:   &domain.OrchestratorState{OrchestratorID: orchestratorID},
		Tickers: make(map[string]*domain.TickerState),
	}

	cp, err := m.stores.Checkpoints.Latest(ctx, orchestratorID)
	switch {
	case err == nil:
		rec.Checkpoint = cp
		if len(cp.SystemState) > 0 {
			if err := json.Unmarshal(cp.SystemState, rec.State); err != nil {
				return nil, fmt.Errorf("unmarshal checkpoint system state: %w", err)
			}
		}
		if len(cp.TickerStates) > 0 {
			if err := json.Unmarshal(cp.TickerStates, &rec.Tickers); err != nil {
				return nil, fmt.Errorf("unmarshal checkpoint ticker states: %w", err)
			}
		}
		if rec.Tickers == nil {
			rec.Tickers = make(map[string]*domain.TickerState)
		}
	case errors.Is(err, storage.ErrNotFound):
		rec.FromColdStart = true
	default:
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}

	// Live rows written after the checkpoint win over the checkpoint copy.
	rows, err := m.stores.Tickers.GetByOrchestrator(ctx, orchestratorID)
	if err != nil {
		return nil, fmt.Errorf("load live ticker rows: %w", err)
	}
	for _, row := range rows {
		existing, ok := rec.Tickers[row.Ticker]
		if !ok || row.LastUpdate >= existing.LastUpdate {
			rec.Tickers[row.Ticker] = row
		}
	}

	if rec.FromColdStart && len(rec.Tickers) > 0 {
		// Rows without a checkpoint still count as recovered state
		rec.FromColdStart = false
	}

	m.log.Info().
		Str("orchestrator_id", orchestratorID).
		Bool("cold_start", rec.FromColdStart).
		Int("tickers", len(rec.Tickers)).
		Msg("state recovered")
	return rec, nil
}

// RunRetention prunes old checkpoints and analytics rows according to the
// configured retention windows. Analytics pruning is best-effort.
func (m *Manager) RunRetention(ctx context.Context, orchestratorID string) error {
	now := m.clk.NowMilli()

	if m.cfg.CheckpointRetentionMs > 0 {
		removed, err := m.stores.Checkpoints.DeleteOlderThan(ctx, orchestratorID, now-m.cfg.CheckpointRetentionMs)
		if err != nil {
			return fmt.Errorf("prune checkpoints: %w", err)
		}
		if removed > 0 {
			m.log.Debug().Int64("removed", removed).Msg("pruned old checkpoints")
		}
	}

	if m.cfg.AnalyticsRetentionMs > 0 {
		cutoff := now - m.cfg.AnalyticsRetentionMs
		if m.stores.Transitions != nil {
			removed, err := m.stores.Transitions.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				m.log.Warn().Err(err).Msg("failed to prune transition rows")
			} else if removed > 0 {
				m.log.Debug().Int64("removed", removed).Msg("pruned old transition rows")
			}
		}
		if m.stores.Signals != nil {
			removed, err := m.stores.Signals.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				m.log.Warn().Err(err).Msg("failed to prune signal rows")
			} else if removed > 0 {
				m.log.Debug().Int64("removed", removed).Msg("pruned old signal rows")
			}
		}
		if m.stores.Analytics != nil {
			removed, err := m.stores.Analytics.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				m.log.Warn().Err(err).Msg("failed to prune analytics rows")
			} else if removed > 0 {
				m.log.Debug().Int64("removed", removed).Msg("pruned old analytics rows")
			}
		}
	}

	return nil
}
