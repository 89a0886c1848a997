package memory

import (
	"context"
	"sort"
	"sync"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// TickerStateStore is an in-memory implementation of storage.TickerStateStore.
type TickerStateStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.TickerState // orchestrator_id -> ticker -> state
}

// NewTickerStateStore creates a new in-memory ticker state store.
func NewTickerStateStore() *TickerStateStore {
	return &TickerStateStore{
		data: make(map[string]map[string]*domain.TickerState),
	}
}

// Upsert inserts or replaces the state row for (orchestrator_id, ticker).
func (s *TickerStateStore) Upsert(_ context.Context, orchestratorID string, t *domain.TickerState) error {
	if orchestratorID == "" || t == nil || t.Ticker == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, exists := s.data[orchestratorID]
	if !exists {
		rows = make(map[string]*domain.TickerState)
		s.data[orchestratorID] = rows
	}
	rows[t.Ticker] = t.Clone()
	return nil
}

// Get retrieves the state for a single ticker. Returns ErrNotFound if not exists.
func (s *TickerStateStore) Get(_ context.Context, orchestratorID, ticker string) (*domain.TickerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[orchestratorID][ticker]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// GetByOrchestrator retrieves all ticker rows for an orchestrator, ordered by ticker ASC.
func (s *TickerStateStore) GetByOrchestrator(_ context.Context, orchestratorID string) ([]*domain.TickerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TickerState
	for _, t := range s.data[orchestratorID] {
		result = append(result, t.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Ticker < result[j].Ticker
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TickerStateStore = (*TickerStateStore)(nil)
