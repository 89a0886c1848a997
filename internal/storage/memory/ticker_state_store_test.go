package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/storage"
)

func TestTickerStateStore_UpsertAndGet(t *testing.T) {
	store := NewTickerStateStore()
	ctx := context.Background()

	ts := &domain.TickerState{
		Ticker:         "SPY",
		Status:         domain.StatusReady,
		Confidence:     0.5,
		Conviction:     0.4,
		FibZone:        domain.ZoneCompression,
		StateEntryTime: 1704067200000,
		LastUpdate:     1704067200000,
	}

	if err := store.Upsert(ctx, "orch-1", ts); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "orch-1", "SPY")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusReady {
		t.Errorf("Status mismatch: got %s, want READY", got.Status)
	}
	if got.Confidence != 0.5 {
		t.Errorf("Confidence mismatch: got %f, want 0.5", got.Confidence)
	}
}

func TestTickerStateStore_UpsertReplaces(t *testing.T) {
	store := NewTickerStateStore()
	ctx := context.Background()

	first := &domain.TickerState{Ticker: "SPY", Status: domain.StatusReady, FibZone: domain.ZoneCompression}
	if err := store.Upsert(ctx, "orch-1", first); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	second := &domain.TickerState{Ticker: "SPY", Status: domain.StatusGo, Confidence: 0.9, FibZone: domain.ZoneMidExpansion}
	if err := store.Upsert(ctx, "orch-1", second); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "orch-1", "SPY")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusGo {
		t.Errorf("expected upsert to replace row, got status %s", got.Status)
	}
}

func TestTickerStateStore_NotFound(t *testing.T) {
	store := NewTickerStateStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "orch-1", "MISSING")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTickerStateStore_GetByOrchestrator(t *testing.T) {
	store := NewTickerStateStore()
	ctx := context.Background()

	for _, sym := range []string{"TSLA", "SPY", "QQQ"} {
		ts := &domain.TickerState{Ticker: sym, Status: domain.StatusReady, FibZone: domain.ZoneCompression}
		if err := store.Upsert(ctx, "orch-1", ts); err != nil {
			t.Fatalf("Upsert %s failed: %v", sym, err)
		}
	}
	// Rows for another orchestrator must not leak in
	other := &domain.TickerState{Ticker: "AAPL", Status: domain.StatusReady, FibZone: domain.ZoneCompression}
	if err := store.Upsert(ctx, "orch-2", other); err != nil {
		t.Fatalf("Upsert AAPL failed: %v", err)
	}

	rows, err := store.GetByOrchestrator(ctx, "orch-1")
	if err != nil {
		t.Fatalf("GetByOrchestrator failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{"QQQ", "SPY", "TSLA"}
	for i, sym := range want {
		if rows[i].Ticker != sym {
			t.Errorf("row %d: got %s, want %s (ticker ASC)", i, rows[i].Ticker, sym)
		}
	}
}

func TestTickerStateStore_CopyOnReadAndWrite(t *testing.T) {
	store := NewTickerStateStore()
	ctx := context.Background()

	until := int64(5000)
	ts := &domain.TickerState{
		Ticker:        "SPY",
		Status:        domain.StatusCooldown,
		FibZone:       domain.ZoneCompression,
		CooldownUntil: &until,
	}
	if err := store.Upsert(ctx, "orch-1", ts); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Mutating the inserted value must not affect the stored row
	*ts.CooldownUntil = 9999
	ts.Status = domain.StatusGo

	got, err := store.Get(ctx, "orch-1", "SPY")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusCooldown || *got.CooldownUntil != 5000 {
		t.Errorf("stored row was mutated externally: status=%s until=%d", got.Status, *got.CooldownUntil)
	}

	// Mutating the returned value must not affect the stored row either
	*got.CooldownUntil = 1
	again, _ := store.Get(ctx, "orch-1", "SPY")
	if *again.CooldownUntil != 5000 {
		t.Errorf("read copy aliases stored row: until=%d", *again.CooldownUntil)
	}
}

func TestTickerStateStore_InvalidInput(t *testing.T) {
	store := NewTickerStateStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, "", &domain.TickerState{Ticker: "SPY"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty orchestrator ID: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Upsert(ctx, "orch-1", nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil state: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Upsert(ctx, "orch-1", &domain.TickerState{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty ticker: expected ErrInvalidInput, got %v", err)
	}
}

func TestTickerStateStore_ConcurrentUpserts(t *testing.T) {
	store := NewTickerStateStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	symbols := []string{"SPY", "QQQ", "TSLA", "NVDA", "AAPL"}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := symbols[i%len(symbols)]
			ts := &domain.TickerState{Ticker: sym, Status: domain.StatusReady, FibZone: domain.ZoneCompression, SignalsProcessed: int64(i)}
			if err := store.Upsert(ctx, "orch-1", ts); err != nil {
				t.Errorf("Upsert failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := store.GetByOrchestrator(ctx, "orch-1")
	if err != nil {
		t.Fatalf("GetByOrchestrator failed: %v", err)
	}
	if len(rows) != len(symbols) {
		t.Errorf("expected %d rows, got %d", len(symbols), len(rows))
	}
}
