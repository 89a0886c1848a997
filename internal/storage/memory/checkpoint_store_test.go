package memory

import (
	"context"
	"errors"
	"testing"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

func TestCheckpointStore_InsertAndLatest(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	checkpoints := []*domain.SystemCheckpoint{
		{ID: "cp-1", OrchestratorID: "orch-1", Type: domain.CheckpointStartup, CreatedAt: 1000},
		{ID: "cp-2", OrchestratorID: "orch-1", Type: domain.CheckpointPeriodic, CreatedAt: 2000},
		{ID: "cp-3", OrchestratorID: "orch-1", Type: domain.CheckpointPeriodic, CreatedAt: 3000},
		{ID: "cp-other", OrchestratorID: "orch-2", Type: domain.CheckpointShutdown, CreatedAt: 9000},
	}
	for _, cp := range checkpoints {
		if err := store.Insert(ctx, cp); err != nil {
			t.Fatalf("Insert %s failed: %v", cp.ID, err)
		}
	}

	latest, err := store.Latest(ctx, "orch-1")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != "cp-3" {
		t.Errorf("Latest: got %s, want cp-3", latest.ID)
	}
}

func TestCheckpointStore_DuplicateKey(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	cp := &domain.SystemCheckpoint{ID: "cp-1", OrchestratorID: "orch-1", Type: domain.CheckpointStartup, CreatedAt: 1000}
	if err := store.Insert(ctx, cp); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, cp); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCheckpointStore_LatestEmpty(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	_, err := store.Latest(ctx, "orch-1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCheckpointStore_ListNewestFirst(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	for i, ts := range []int64{1000, 3000, 2000, 4000} {
		cp := &domain.SystemCheckpoint{
			ID:             string(rune('a' + i)),
			OrchestratorID: "orch-1",
			Type:           domain.CheckpointPeriodic,
			CreatedAt:      ts,
		}
		if err := store.Insert(ctx, cp); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.List(ctx, "orch-1", 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 checkpoints, got %d", len(got))
	}
	want := []int64{4000, 3000, 2000}
	for i, ts := range want {
		if got[i].CreatedAt != ts {
			t.Errorf("position %d: got created_at %d, want %d", i, got[i].CreatedAt, ts)
		}
	}
}

func TestCheckpointStore_DeleteOlderThan(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	for i, ts := range []int64{1000, 2000, 3000, 4000} {
		cp := &domain.SystemCheckpoint{
			ID:             string(rune('a' + i)),
			OrchestratorID: "orch-1",
			Type:           domain.CheckpointPeriodic,
			CreatedAt:      ts,
		}
		if err := store.Insert(ctx, cp); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	removed, err := store.DeleteOlderThan(ctx, "orch-1", 3000)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed: got %d, want 2", removed)
	}

	left, err := store.List(ctx, "orch-1", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(left) != 2 {
		t.Errorf("expected 2 checkpoints remaining, got %d", len(left))
	}
	for _, cp := range left {
		if cp.CreatedAt < 3000 {
			t.Errorf("checkpoint %s (created_at=%d) should have been deleted", cp.ID, cp.CreatedAt)
		}
	}
}
