package clickhouse

import (
	"context"
	"fmt"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// TransitionStore implements storage.TransitionStore using ClickHouse.
type TransitionStore struct {
	conn *Conn
}

// NewTransitionStore creates a new TransitionStore.
func NewTransitionStore(conn *Conn) *TransitionStore {
	return &TransitionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransitionStore = (*TransitionStore)(nil)

// Insert adds a single transition record.
func (s *TransitionStore) Insert(ctx context.Context, tr *domain.StateTransition) error {
	if tr == nil || tr.Ticker == "" {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.StateTransition{tr})
}

// InsertBulk adds multiple transitions in one batch.
func (s *TransitionStore) InsertBulk(ctx context.Context, trs []*domain.StateTransition) error {
	if len(trs) == 0 {
		return nil
	}
	for _, tr := range trs {
		if tr == nil || tr.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO state_transitions (
			ticker, from_status, to_status, duration_ms, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tr := range trs {
		err = batch.Append(
			tr.Ticker, string(tr.From), string(tr.To),
			uint64(tr.DurationMs), uint64(tr.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTicker retrieves transitions for a ticker within [start, end] (inclusive), ordered by timestamp ASC.
func (s *TransitionStore) GetByTicker(ctx context.Context, ticker string, start, end int64) ([]*domain.StateTransition, error) {
	query := `
		SELECT ticker, from_status, to_status, duration_ms, timestamp_ms
		FROM state_transitions
		WHERE ticker = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, ticker, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query transitions by ticker: %w", err)
	}
	defer rows.Close()

	return scanTransitions(rows)
}

// DeleteOlderThan removes transitions recorded before cutoff (Unix ms).
// ClickHouse lightweight deletes are asynchronous, so the removed row
// count is not available; callers get the matched count instead.
func (s *TransitionStore) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM state_transitions WHERE timestamp_ms < ?
	`, uint64(cutoff)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count old transitions: %w", err)
	}

	err = s.conn.Exec(ctx, `
		DELETE FROM state_transitions WHERE timestamp_ms < ?
	`, uint64(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old transitions: %w", err)
	}
	return int64(count), nil
}

// scanTransitions scans multiple rows.
func scanTransitions(rows chRows) ([]*domain.StateTransition, error) {
	var result []*domain.StateTransition

	for rows.Next() {
		var tr domain.StateTransition
		var fromStr, toStr string
		var durationMs, timestampMs uint64

		err := rows.Scan(&tr.Ticker, &fromStr, &toStr, &durationMs, &timestampMs)
		if err != nil {
			return nil, fmt.Errorf("scan transition row: %w", err)
		}

		tr.From = domain.TickerStatus(fromStr)
		tr.To = domain.TickerStatus(toStr)
		tr.DurationMs = int64(durationMs)
		tr.Timestamp = int64(timestampMs)
		result = append(result, &tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition rows: %w", err)
	}

	return result, nil
}
