package memory

import (
	"context"
	"sort"
	"sync"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// TransitionStore is an in-memory implementation of storage.TransitionStore.
type TransitionStore struct {
	mu   sync.RWMutex
	data []*domain.StateTransition
}

// NewTransitionStore creates a new in-memory transition store.
func NewTransitionStore() *TransitionStore {
	return &TransitionStore{}
}

// Insert adds a single transition record.
func (s *TransitionStore) Insert(_ context.Context, tr *domain.StateTransition) error {
	if tr == nil || tr.Ticker == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trCopy := *tr
	s.data = append(s.data, &trCopy)
	return nil
}

// InsertBulk adds multiple transitions in one batch.
func (s *TransitionStore) InsertBulk(_ context.Context, trs []*domain.StateTransition) error {
	for _, tr := range trs {
		if tr == nil || tr.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tr := range trs {
		trCopy := *tr
		s.data = append(s.data, &trCopy)
	}
	return nil
}

// GetByTicker retrieves transitions for a ticker within [start, end] (inclusive), ordered by timestamp ASC.
func (s *TransitionStore) GetByTicker(_ context.Context, ticker string, start, end int64) ([]*domain.StateTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StateTransition
	for _, tr := range s.data {
		if tr.Ticker == ticker && tr.Timestamp >= start && tr.Timestamp <= end {
			trCopy := *tr
			result = append(result, &trCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// DeleteOlderThan removes transitions recorded before cutoff (Unix ms).
func (s *TransitionStore) DeleteOlderThan(_ context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data[:0]
	var removed int64
	for _, tr := range s.data {
		if tr.Timestamp < cutoff {
			removed++
			continue
		}
		kept = append(kept, tr)
	}
	s.data = kept
	return removed, nil
}

// Verify interface compliance at compile time.
var _ storage.TransitionStore = (*TransitionStore)(nil)
