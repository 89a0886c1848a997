package postgres

import (
	"context"
	"fmt"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// OrchestratorStateStore implements storage.OrchestratorStateStore using PostgreSQL.
type OrchestratorStateStore struct {
	pool *Pool
}

// NewOrchestratorStateStore creates a new OrchestratorStateStore.
func NewOrchestratorStateStore(pool *Pool) *OrchestratorStateStore {
	return &OrchestratorStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrchestratorStateStore = (*OrchestratorStateStore)(nil)

const upsertOrchestratorStateQuery = `
	INSERT INTO orchestrator_state (
		orchestrator_id, active_tickers, total_signals, active_trades,
		portfolio_heat, health, trading_halted, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (orchestrator_id) DO UPDATE SET
		active_tickers = EXCLUDED.active_tickers,
		total_signals = EXCLUDED.total_signals,
		active_trades = EXCLUDED.active_trades,
		portfolio_heat = EXCLUDED.portfolio_heat,
		health = EXCLUDED.health,
		trading_halted = EXCLUDED.trading_halted,
		updated_at = EXCLUDED.updated_at
`

// SaveSnapshot persists the orchestrator row and all ticker rows in a
// single transaction.
func (s *OrchestratorStateStore) SaveSnapshot(ctx context.Context, state *domain.OrchestratorState, tickers []*domain.TickerState) error {
	if state == nil || state.OrchestratorID == "" {
		return storage.ErrInvalidInput
	}
	for _, t := range tickers {
		if t == nil || t.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, upsertOrchestratorStateQuery,
		state.OrchestratorID,
		state.ActiveTickers,
		state.TotalSignals,
		state.ActiveTrades,
		state.PortfolioHeat,
		state.Health,
		state.TradingHalted,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert orchestrator state: %w", err)
	}

	for _, t := range tickers {
		_, err = tx.Exec(ctx, upsertTickerStateQuery, tickerStateArgs(state.OrchestratorID, t)...)
		if err != nil {
			return fmt.Errorf("upsert ticker state %s: %w", t.Ticker, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// Get retrieves orchestrator state by ID. Returns ErrNotFound if not exists.
func (s *OrchestratorStateStore) Get(ctx context.Context, orchestratorID string) (*domain.OrchestratorState, error) {
	query := `
		SELECT orchestrator_id, active_tickers, total_signals, active_trades,
		       portfolio_heat, health, trading_halted, updated_at
		FROM orchestrator_state
		WHERE orchestrator_id = $1
	`

	var st domain.OrchestratorState
	err := s.pool.QueryRow(ctx, query, orchestratorID).Scan(
		&st.OrchestratorID,
		&st.ActiveTickers,
		&st.TotalSignals,
		&st.ActiveTrades,
		&st.PortfolioHeat,
		&st.Health,
		&st.TradingHalted,
		&st.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get orchestrator state: %w", err)
	}
	return &st, nil
}
