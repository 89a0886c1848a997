package clickhouse

import (
	"context"
	"fmt"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// SignalStore implements storage.SignalStore using ClickHouse.
type SignalStore struct {
	conn *Conn
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(conn *Conn) *SignalStore {
	return &SignalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Insert adds a signal record. Returns ErrDuplicateKey if signal_id exists.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.SignalRecord) error {
	if sig == nil || sig.SignalID == "" || sig.Ticker == "" {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.SignalRecord{sig})
}

// InsertBulk adds multiple signal records in one batch. Fails entire batch on any duplicate.
func (s *SignalStore) InsertBulk(ctx context.Context, signals []*domain.SignalRecord) error {
	if len(signals) == 0 {
		return nil
	}
	for _, sig := range signals {
		if sig == nil || sig.SignalID == "" || sig.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{})
	for _, sig := range signals {
		if _, exists := seen[sig.SignalID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[sig.SignalID] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, sig := range signals {
		exists, err := s.exists(ctx, sig.SignalID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO enhanced_signals (
			signal_id, ticker, confidence, conviction, status, price, volume, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sig := range signals {
		err = batch.Append(
			sig.SignalID, sig.Ticker, sig.Confidence, sig.Conviction,
			string(sig.Status), sig.Price, sig.Volume, uint64(sig.Timestamp),
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

// GetByTicker retrieves signals for a ticker within [start, end] (inclusive), ordered by timestamp ASC.
func (s *SignalStore) GetByTicker(ctx context.Context, ticker string, start, end int64) ([]*domain.SignalRecord, error) {
	query := `
		SELECT signal_id, ticker, confidence, conviction, status, price, volume, timestamp_ms
		FROM enhanced_signals
		WHERE ticker = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, ticker, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query signals by ticker: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// DeleteOlderThan removes signal records recorded before cutoff (Unix ms).
// ClickHouse lightweight deletes are asynchronous, so the removed row
// count is not available; callers get the matched count instead.
func (s *SignalStore) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM enhanced_signals WHERE timestamp_ms < ?
	`, uint64(cutoff)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count old signals: %w", err)
	}

	err = s.conn.Exec(ctx, `
		DELETE FROM enhanced_signals WHERE timestamp_ms < ?
	`, uint64(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old signals: %w", err)
	}
	return int64(count), nil
}

// exists checks if a signal with the given ID exists.
func (s *SignalStore) exists(ctx context.Context, signalID string) (bool, error) {
	query := `
		SELECT count(*) FROM enhanced_signals
		WHERE signal_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, signalID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanSignals scans multiple rows.
func scanSignals(rows chRows) ([]*domain.SignalRecord, error) {
	var result []*domain.SignalRecord

	for rows.Next() {
		var sig domain.SignalRecord
		var statusStr string
		var timestampMs uint64

		err := rows.Scan(
			&sig.SignalID, &sig.Ticker, &sig.Confidence, &sig.Conviction,
			&statusStr, &sig.Price, &sig.Volume, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}

		sig.Status = domain.TickerStatus(statusStr)
		sig.Timestamp = int64(timestampMs)
		result = append(result, &sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}

	return result, nil
}
