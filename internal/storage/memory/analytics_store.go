package memory

import (
	"context"
	"sort"
	"sync"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// AnalyticsStore is an in-memory implementation of storage.AnalyticsStore.
type AnalyticsStore struct {
	mu   sync.RWMutex
	data []*domain.PerformanceSnapshot
}

// NewAnalyticsStore creates a new in-memory analytics store.
func NewAnalyticsStore() *AnalyticsStore {
	return &AnalyticsStore{}
}

// InsertBulk adds multiple performance snapshots in one batch.
func (s *AnalyticsStore) InsertBulk(_ context.Context, snaps []*domain.PerformanceSnapshot) error {
	for _, sn := range snaps {
		if sn == nil || sn.OrchestratorID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sn := range snaps {
		snCopy := *sn
		s.data = append(s.data, &snCopy)
	}
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive), ordered by timestamp ASC.
func (s *AnalyticsStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PerformanceSnapshot
	for _, sn := range s.data {
		if sn.Timestamp >= start && sn.Timestamp <= end {
			snCopy := *sn
			result = append(result, &snCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// DeleteOlderThan removes snapshots recorded before cutoff (Unix ms).
func (s *AnalyticsStore) DeleteOlderThan(_ context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*domain.PerformanceSnapshot
	var removed int64
	for _, sn := range s.data {
		if sn.Timestamp < cutoff {
			removed++
			continue
		}
		kept = append(kept, sn)
	}
	s.data = kept
	return removed, nil
}

// Verify interface compliance at compile time.
var _ storage.AnalyticsStore = (*AnalyticsStore)(nil)
