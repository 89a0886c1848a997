package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

const checkpointColumns = `
	checkpoint_id, orchestrator_id, checkpoint_type, system_state,
	ticker_states, active_tasks, configuration, performance, created_at
`

// Insert adds a new checkpoint. Returns ErrDuplicateKey if checkpoint_id exists.
func (s *CheckpointStore) Insert(ctx context.Context, cp *domain.SystemCheckpoint) error {
	if cp == nil || cp.ID == "" || cp.OrchestratorID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO system_checkpoints (` + checkpointColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		cp.ID,
		cp.OrchestratorID,
		string(cp.Type),
		[]byte(cp.SystemState),
		[]byte(cp.TickerStates),
		[]byte(cp.ActiveTasks),
		[]byte(cp.Configuration),
		[]byte(cp.Performance),
		cp.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Latest retrieves the most recent checkpoint for an orchestrator.
func (s *CheckpointStore) Latest(ctx context.Context, orchestratorID string) (*domain.SystemCheckpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM system_checkpoints
		WHERE orchestrator_id = $1
		ORDER BY created_at DESC, checkpoint_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, orchestratorID)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest checkpoint: %w", err)
	}
	return cp, nil
}

// List retrieves checkpoints for an orchestrator, newest first, up to limit.
func (s *CheckpointStore) List(ctx context.Context, orchestratorID string, limit int) ([]*domain.SystemCheckpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM system_checkpoints
		WHERE orchestrator_id = $1
		ORDER BY created_at DESC, checkpoint_id DESC
	`
	args := []any{orchestratorID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var result []*domain.SystemCheckpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		result = append(result, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint rows: %w", err)
	}
	return result, nil
}

// DeleteOlderThan removes checkpoints created before cutoff (Unix ms).
func (s *CheckpointStore) DeleteOlderThan(ctx context.Context, orchestratorID string, cutoff int64) (int64, error) {
	query := `
		DELETE FROM system_checkpoints
		WHERE orchestrator_id = $1 AND created_at < $2
	`

	tag, err := s.pool.Exec(ctx, query, orchestratorID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanCheckpoint scans a single row into a SystemCheckpoint.
func scanCheckpoint(row pgx.Row) (*domain.SystemCheckpoint, error) {
	var cp domain.SystemCheckpoint
	var typeStr string
	var systemState, tickerStates, activeTasks, configuration, performance []byte

	err := row.Scan(
		&cp.ID,
		&cp.OrchestratorID,
		&typeStr,
		&systemState,
		&tickerStates,
		&activeTasks,
		&configuration,
		&performance,
		&cp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	cp.Type = domain.CheckpointType(typeStr)
	cp.SystemState = systemState
	cp.TickerStates = tickerStates
	cp.ActiveTasks = activeTasks
	cp.Configuration = configuration
	cp.Performance = performance
	return &cp, nil
}
