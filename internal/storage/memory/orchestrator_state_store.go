package memory

import (
	"context"
	"sync"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// OrchestratorStateStore is an in-memory implementation of storage.OrchestratorStateStore.
type OrchestratorStateStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.OrchestratorState // keyed by orchestrator_id
	tickers *TickerStateStore
}

// NewOrchestratorStateStore creates a new in-memory orchestrator state store.
// Snapshots write ticker rows through the provided ticker store so the two
// stay consistent, mirroring the transactional postgres implementation.
func NewOrchestratorStateStore(tickers *TickerStateStore) *OrchestratorStateStore {
	return &OrchestratorStateStore{
		data:    make(map[string]*domain.OrchestratorState),
		tickers: tickers,
	}
}

// SaveSnapshot persists the orchestrator row and all ticker rows as a single unit.
func (s *OrchestratorStateStore) SaveSnapshot(ctx context.Context, state *domain.OrchestratorState, tickers []*domain.TickerState) error {
	if state == nil || state.OrchestratorID == "" {
		return storage.ErrInvalidInput
	}
	for _, t := range tickers {
		if t == nil || t.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validation above guarantees every Upsert below succeeds, so the
	// snapshot is effectively atomic despite the two store writes.
	stateCopy := *state
	s.data[state.OrchestratorID] = &stateCopy

	for _, t := range tickers {
		if err := s.tickers.Upsert(ctx, state.OrchestratorID, t); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves orchestrator state by ID. Returns ErrNotFound if not exists.
func (s *OrchestratorStateStore) Get(_ context.Context, orchestratorID string) (*domain.OrchestratorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[orchestratorID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	stateCopy := *st
	return &stateCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.OrchestratorStateStore = (*OrchestratorStateStore)(nil)
