package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// TickerStateStore implements storage.TickerStateStore using PostgreSQL.
type TickerStateStore struct {
	pool *Pool
}

// NewTickerStateStore creates a new TickerStateStore.
func NewTickerStateStore(pool *Pool) *TickerStateStore {
	return &TickerStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TickerStateStore = (*TickerStateStore)(nil)

const tickerStateColumns = `
	orchestrator_id, ticker, status, confidence, conviction, fib_zone,
	gamma_exposure, recommended_option, position_id, state_entry_time,
	cooldown_until, last_update, signals_processed
`

const upsertTickerStateQuery = `
	INSERT INTO ticker_states (
		orchestrator_id, ticker, status, confidence, conviction, fib_zone,
		gamma_exposure, recommended_option, position_id, state_entry_time,
		cooldown_until, last_update, signals_processed
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (orchestrator_id, ticker) DO UPDATE SET
		status = EXCLUDED.status,
		confidence = EXCLUDED.confidence,
		conviction = EXCLUDED.conviction,
		fib_zone = EXCLUDED.fib_zone,
		gamma_exposure = EXCLUDED.gamma_exposure,
		recommended_option = EXCLUDED.recommended_option,
		position_id = EXCLUDED.position_id,
		state_entry_time = EXCLUDED.state_entry_time,
		cooldown_until = EXCLUDED.cooldown_until,
		last_update = EXCLUDED.last_update,
		signals_processed = EXCLUDED.signals_processed
`

// Upsert inserts or replaces the state row for (orchestrator_id, ticker).
func (s *TickerStateStore) Upsert(ctx context.Context, orchestratorID string, t *domain.TickerState) error {
	if orchestratorID == "" || t == nil || t.Ticker == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, upsertTickerStateQuery, tickerStateArgs(orchestratorID, t)...)
	if err != nil {
		return fmt.Errorf("upsert ticker state: %w", err)
	}
	return nil
}

// Get retrieves the state for a single ticker. Returns ErrNotFound if not exists.
func (s *TickerStateStore) Get(ctx context.Context, orchestratorID, ticker string) (*domain.TickerState, error) {
	query := `
		SELECT ` + tickerStateColumns + `
		FROM ticker_states
		WHERE orchestrator_id = $1 AND ticker = $2
	`

	row := s.pool.QueryRow(ctx, query, orchestratorID, ticker)
	t, err := scanTickerState(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ticker state: %w", err)
	}
	return t, nil
}

// GetByOrchestrator retrieves all ticker rows for an orchestrator, ordered by ticker ASC.
func (s *TickerStateStore) GetByOrchestrator(ctx context.Context, orchestratorID string) ([]*domain.TickerState, error) {
	query := `
		SELECT ` + tickerStateColumns + `
		FROM ticker_states
		WHERE orchestrator_id = $1
		ORDER BY ticker ASC
	`

	rows, err := s.pool.Query(ctx, query, orchestratorID)
	if err != nil {
		return nil, fmt.Errorf("get ticker states by orchestrator: %w", err)
	}
	defer rows.Close()

	return scanTickerStates(rows)
}

// tickerStateArgs builds the positional arguments for the upsert query.
func tickerStateArgs(orchestratorID string, t *domain.TickerState) []any {
	return []any{
		orchestratorID,
		t.Ticker,
		string(t.Status),
		t.Confidence,
		t.Conviction,
		string(t.FibZone),
		t.GammaExposure,
		[]byte(t.RecommendedOption),
		t.PositionID,
		t.StateEntryTime,
		t.CooldownUntil,
		t.LastUpdate,
		t.SignalsProcessed,
	}
}

// scanTickerState scans a single row into a TickerState.
func scanTickerState(row pgx.Row) (*domain.TickerState, error) {
	var t domain.TickerState
	var orchestratorID, statusStr, zoneStr string
	var option []byte

	err := row.Scan(
		&orchestratorID,
		&t.Ticker,
		&statusStr,
		&t.Confidence,
		&t.Conviction,
		&zoneStr,
		&t.GammaExposure,
		&option,
		&t.PositionID,
		&t.StateEntryTime,
		&t.CooldownUntil,
		&t.LastUpdate,
		&t.SignalsProcessed,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TickerStatus(statusStr)
	t.FibZone = domain.FibZone(zoneStr)
	if len(option) > 0 {
		t.RecommendedOption = option
	}
	return &t, nil
}

// scanTickerStates scans multiple rows into a slice of TickerState.
func scanTickerStates(rows pgx.Rows) ([]*domain.TickerState, error) {
	var states []*domain.TickerState

	for rows.Next() {
		t, err := scanTickerState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticker state row: %w", err)
		}
		states = append(states, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticker state rows: %w", err)
	}

	return states, nil
}
