package memory

import (
	"context"
	"sort"
	"sync"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SystemCheckpoint // keyed by checkpoint ID
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[string]*domain.SystemCheckpoint),
	}
}

// Insert adds a new checkpoint. Returns ErrDuplicateKey if checkpoint_id exists.
func (s *CheckpointStore) Insert(_ context.Context, cp *domain.SystemCheckpoint) error {
	if cp == nil || cp.ID == "" || cp.OrchestratorID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[cp.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	cpCopy := *cp
	s.data[cp.ID] = &cpCopy
	return nil
}

// Latest retrieves the most recent checkpoint for an orchestrator.
func (s *CheckpointStore) Latest(_ context.Context, orchestratorID string) (*domain.SystemCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SystemCheckpoint
	for _, cp := range s.data {
		if cp.OrchestratorID != orchestratorID {
			continue
		}
		if latest == nil || cp.CreatedAt > latest.CreatedAt {
			latest = cp
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	cpCopy := *latest
	return &cpCopy, nil
}

// List retrieves checkpoints for an orchestrator, newest first, up to limit.
func (s *CheckpointStore) List(_ context.Context, orchestratorID string, limit int) ([]*domain.SystemCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SystemCheckpoint
	for _, cp := range s.data {
		if cp.OrchestratorID == orchestratorID {
			cpCopy := *cp
			result = append(result, &cpCopy)
		}
	}

	// Sort by created_at DESC
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteOlderThan removes checkpoints created before cutoff (Unix ms).
func (s *CheckpointStore) DeleteOlderThan(_ context.Context, orchestratorID string, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, cp := range s.data {
		if cp.OrchestratorID == orchestratorID && cp.CreatedAt < cutoff {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}

// Verify interface compliance at compile time.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)
