package ticker

import (
	"testing"

	"ticker-orchestrator/internal/domain"
)

func TestStore_GetOrInit(t *testing.T) {
	s := NewStore()

	st, created := s.GetOrInit("SPY", 1000)
	if !created {
		t.Fatal("expected ticker to be created on first reference")
	}
	if st.Status != domain.StatusReady {
		t.Errorf("initial status: got %s, want READY", st.Status)
	}
	if st.StateEntryTime != 1000 || st.LastUpdate != 1000 {
		t.Errorf("timestamps not initialized: entry=%d last=%d", st.StateEntryTime, st.LastUpdate)
	}

	// Second reference is idempotent.
	again, created := s.GetOrInit("SPY", 2000)
	if created {
		t.Error("second reference should not re-create")
	}
	if again != st {
		t.Error("second reference should return the same state")
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}
}

func TestSetStatus_CooldownInvariant(t *testing.T) {
	s := NewStore()
	st, _ := s.GetOrInit("QQQ", 1000)

	until := int64(5000)
	tr := setStatus(st, domain.StatusCooldown, &until, 2000)

	if st.Status != domain.StatusCooldown {
		t.Fatalf("status: got %s, want COOLDOWN", st.Status)
	}
	if st.CooldownUntil == nil || *st.CooldownUntil != 5000 {
		t.Error("cooldownUntil must be set while in COOLDOWN")
	}
	if tr.From != domain.StatusReady || tr.To != domain.StatusCooldown {
		t.Errorf("transition: got %s→%s", tr.From, tr.To)
	}
	if tr.DurationMs != 1000 {
		t.Errorf("durationMs: got %d, want 1000", tr.DurationMs)
	}

	// Leaving COOLDOWN clears cooldownUntil.
	setStatus(st, domain.StatusReady, nil, 6000)
	if st.CooldownUntil != nil {
		t.Error("cooldownUntil must be nil outside COOLDOWN")
	}
	if st.StateEntryTime != 6000 {
		t.Errorf("stateEntryTime not reset: got %d", st.StateEntryTime)
	}
}

func TestCooldownExpired(t *testing.T) {
	s := NewStore()
	st, _ := s.GetOrInit("IWM", 0)

	until := int64(3000)
	setStatus(st, domain.StatusCooldown, &until, 0)

	if cooldownExpired(st, 2999) {
		t.Error("cooldown should not be expired before cooldownUntil")
	}
	if !cooldownExpired(st, 3000) {
		t.Error("cooldown should be expired at cooldownUntil")
	}
}
