package memory

import (
	"context"
	"sort"
	"sync"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SignalRecord // keyed by signal_id
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[string]*domain.SignalRecord),
	}
}

// Insert adds a signal record. Returns ErrDuplicateKey if signal_id exists.
func (s *SignalStore) Insert(_ context.Context, sig *domain.SignalRecord) error {
	if sig == nil || sig.SignalID == "" || sig.Ticker == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sig.SignalID]; exists {
		return storage.ErrDuplicateKey
	}

	sigCopy := *sig
	s.data[sig.SignalID] = &sigCopy
	return nil
}

// InsertBulk adds multiple signal records in one batch. Fails entire batch on any duplicate.
func (s *SignalStore) InsertBulk(_ context.Context, signals []*domain.SignalRecord) error {
	for _, sig := range signals {
		if sig == nil || sig.SignalID == "" || sig.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check all before writing any
	for _, sig := range signals {
		if _, exists := s.data[sig.SignalID]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, sig := range signals {
		sigCopy := *sig
		s.data[sig.SignalID] = &sigCopy
	}
	return nil
}

// GetByTicker retrieves signals for a ticker within [start, end] (inclusive), ordered by timestamp ASC.
func (s *SignalStore) GetByTicker(_ context.Context, ticker string, start, end int64) ([]*domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalRecord
	for _, sig := range s.data {
		if sig.Ticker == ticker && sig.Timestamp >= start && sig.Timestamp <= end {
			sigCopy := *sig
			result = append(result, &sigCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// DeleteOlderThan removes signal records recorded before cutoff (Unix ms).
func (s *SignalStore) DeleteOlderThan(_ context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, sig := range s.data {
		if sig.Timestamp < cutoff {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}

// Verify interface compliance at compile time.
var _ storage.SignalStore = (*SignalStore)(nil)
