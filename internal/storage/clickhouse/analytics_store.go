package clickhouse

import (
	"context"
	"fmt"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// AnalyticsStore implements storage.AnalyticsStore using ClickHouse.
type AnalyticsStore struct {
	conn *Conn
}

// NewAnalyticsStore creates a new AnalyticsStore.
func NewAnalyticsStore(conn *Conn) *AnalyticsStore {
	return &AnalyticsStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AnalyticsStore = (*AnalyticsStore)(nil)

// InsertBulk adds multiple performance snapshots in one batch.
func (s *AnalyticsStore) InsertBulk(ctx context.Context, snaps []*domain.PerformanceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for _, sn := range snaps {
		if sn == nil || sn.OrchestratorID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO performance_analytics (
			orchestrator_id, tickers_tracked, signals_processed, queue_depth,
			active_workers, failed_workers, tasks_in_flight, avg_latency_ms, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sn := range snaps {
		err = batch.Append(
			sn.OrchestratorID, uint32(sn.TickersTracked), uint64(sn.SignalsProcessed),
			uint32(sn.QueueDepth), uint32(sn.ActiveWorkers), uint32(sn.FailedWorkers),
			uint32(sn.TasksInFlight), sn.AvgLatencyMs, uint64(sn.Timestamp),
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

// GetByTimeRange retrieves snapshots within [start, end] (inclusive), ordered by timestamp ASC.
func (s *AnalyticsStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PerformanceSnapshot, error) {
	query := `
		SELECT orchestrator_id, tickers_tracked, signals_processed, queue_depth,
		       active_workers, failed_workers, tasks_in_flight, avg_latency_ms, timestamp_ms
		FROM performance_analytics
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query analytics by time range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// DeleteOlderThan removes snapshots recorded before cutoff (Unix ms).
// ClickHouse lightweight deletes are asynchronous, so the removed row
// count is not available; callers get the matched count instead.
func (s *AnalyticsStore) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM performance_analytics WHERE timestamp_ms < ?
	`, uint64(cutoff)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count old analytics: %w", err)
	}

	err = s.conn.Exec(ctx, `
		DELETE FROM performance_analytics WHERE timestamp_ms < ?
	`, uint64(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old analytics: %w", err)
	}
	return int64(count), nil
}

// scanSnapshots scans multiple rows.
func scanSnapshots(rows chRows) ([]*domain.PerformanceSnapshot, error) {
	var result []*domain.PerformanceSnapshot

	for rows.Next() {
		var sn domain.PerformanceSnapshot
		var tickersTracked, queueDepth, activeWorkers, failedWorkers, tasksInFlight uint32
		var signalsProcessed, timestampMs uint64

		err := rows.Scan(
			&sn.OrchestratorID, &tickersTracked, &signalsProcessed, &queueDepth,
			&activeWorkers, &failedWorkers, &tasksInFlight, &sn.AvgLatencyMs, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}

		sn.TickersTracked = int(tickersTracked)
		sn.SignalsProcessed = int64(signalsProcessed)
		sn.QueueDepth = int(queueDepth)
		sn.ActiveWorkers = int(activeWorkers)
		sn.FailedWorkers = int(failedWorkers)
		sn.TasksInFlight = int(tasksInFlight)
		sn.Timestamp = int64(timestampMs)
		result = append(result, &sn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics rows: %w", err)
	}

	return result, nil
}
