package ticker

import (
	"errors"
	"testing"
	"time"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/events"
)

func f64(v float64) *float64 { return &v }

func status(s domain.TickerStatus) *domain.TickerStatus { return &s }

func newTestManager(clk clock.Clock) *Manager {
	return NewManager("orch-test", DefaultConfig(), clk, events.NewBus(), testLogger())
}

func TestUpdateTicker_ReadySetGoCooldownScenario(t *testing.T) {
	clk := clock.NewFake(1_700_000_000_000)
	m := newTestManager(clk)

	// SPY starts READY on first reference.
	st, err := m.UpdateTicker("SPY", Update{Confidence: f64(0.1), Conviction: f64(0.1)})
	if err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	if st.Status != domain.StatusReady {
		t.Fatalf("status after init: got %s, want READY", st.Status)
	}

	// Crossing the SET thresholds promotes READY → SET.
	st, err = m.UpdateTicker("SPY", Update{Confidence: f64(0.7), Conviction: f64(0.8)})
	if err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	if st.Status != domain.StatusSet {
		t.Fatalf("status: got %s, want SET", st.Status)
	}

	// Crossing the GO thresholds promotes SET → GO.
	st, err = m.UpdateTicker("SPY", Update{Confidence: f64(0.85), Conviction: f64(0.9)})
	if err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	if st.Status != domain.StatusGo {
		t.Fatalf("status: got %s, want GO", st.Status)
	}

	// Force COOLDOWN with an explicit 3000ms expiry.
	until := clk.NowMilli() + 3000
	st, err = m.UpdateTicker("SPY", Update{Status: status(domain.StatusCooldown), CooldownUntil: &until})
	if err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	if st.Status != domain.StatusCooldown {
		t.Fatalf("status: got %s, want COOLDOWN", st.Status)
	}
	if st.CooldownUntil == nil || *st.CooldownUntil != until {
		t.Fatal("cooldownUntil not applied")
	}

	// 1000ms later the ticker is still cooling down.
	clk.Advance(1000 * time.Millisecond)
	if got := m.Get("SPY").Status; got != domain.StatusCooldown {
		t.Errorf("at +1000ms: got %s, want COOLDOWN", got)
	}

	// 3100ms after entry the cooldown has lapsed; any read sees READY.
	clk.Advance(2100 * time.Millisecond)
	if got := m.Get("SPY").Status; got != domain.StatusReady {
		t.Errorf("at +3100ms: got %s, want READY", got)
	}
}

func TestUpdateTicker_ReadyDoesNotSkipToGo(t *testing.T) {
	clk := clock.NewFake(0)
	m := newTestManager(clk)

	// Scores above the GO thresholds from READY still land in SET first.
	st, err := m.UpdateTicker("SPY", Update{Confidence: f64(0.95), Conviction: f64(0.95)})
	if err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	if st.Status != domain.StatusSet {
		t.Errorf("status: got %s, want SET", st.Status)
	}
}

func TestUpdateTicker_ValidationRejectsWithoutMutation(t *testing.T) {
	clk := clock.NewFake(0)
	m := newTestManager(clk)

	if _, err := m.UpdateTicker("SPY", Update{Confidence: f64(0.4)}); err != nil {
		t.Fatalf("setup update failed: %v", err)
	}

	_, err := m.UpdateTicker("SPY", Update{Confidence: f64(1.5), Conviction: f64(0.9)})
	if !errors.Is(err, ErrConfidenceRange) {
		t.Fatalf("expected ErrConfidenceRange, got %v", err)
	}

	// The valid conviction in the rejected update must not have been applied.
	st := m.Get("SPY")
	if st.Conviction != 0 {
		t.Errorf("partial mutation applied: conviction=%v", st.Conviction)
	}
	if st.Confidence != 0.4 {
		t.Errorf("prior state clobbered: confidence=%v", st.Confidence)
	}

	_, err = m.UpdateTicker("SPY", Update{Conviction: f64(-0.1)})
	if !errors.Is(err, ErrConvictionRange) {
		t.Errorf("expected ErrConvictionRange, got %v", err)
	}

	bad := domain.TickerStatus("LIMBO")
	_, err = m.UpdateTicker("SPY", Update{Status: &bad})
	if !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("expected ErrUnknownStatus, got %v", err)
	}

	badZone := domain.FibZone("HYPERSPACE")
	_, err = m.UpdateTicker("SPY", Update{FibZone: &badZone})
	if !errors.Is(err, ErrUnknownZone) {
		t.Errorf("expected ErrUnknownZone, got %v", err)
	}
}

func TestUpdateTicker_TransitionRecords(t *testing.T) {
	clk := clock.NewFake(10_000)
	m := newTestManager(clk)

	if _, err := m.UpdateTicker("SPY", Update{Confidence: f64(0.1)}); err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	clk.Advance(4 * time.Second)
	if _, err := m.UpdateTicker("SPY", Update{Confidence: f64(0.7), Conviction: f64(0.7)}); err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}

	trs := m.DrainTransitions()
	if len(trs) != 1 {
		t.Fatalf("transitions: got %d, want 1", len(trs))
	}
	tr := trs[0]
	if tr.From != domain.StatusReady || tr.To != domain.StatusSet {
		t.Errorf("transition: got %s→%s", tr.From, tr.To)
	}
	if tr.DurationMs != 4000 {
		t.Errorf("durationMs: got %d, want 4000", tr.DurationMs)
	}

	// Drain clears the buffer.
	if again := m.DrainTransitions(); len(again) != 0 {
		t.Errorf("second drain: got %d records, want 0", len(again))
	}
}

func TestManager_TransitionEvents(t *testing.T) {
	clk := clock.NewFake(0)
	bus := events.NewBus()
	var got []domain.Event
	bus.Subscribe(func(e domain.Event) {
		if e.Type == domain.EventStateTransition {
			got = append(got, e)
		}
	})
	m := NewManager("orch-test", DefaultConfig(), clk, bus, testLogger())

	if _, err := m.UpdateTicker("SPY", Update{Confidence: f64(0.9), Conviction: f64(0.9)}); err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("events: got %d, want 1", len(got))
	}
	if got[0].Ticker != "SPY" {
		t.Errorf("event ticker: got %s", got[0].Ticker)
	}
}

func TestStats_OnDemand(t *testing.T) {
	clk := clock.NewFake(0)
	m := newTestManager(clk)

	for _, tk := range []string{"SPY", "QQQ", "IWM"} {
		if _, err := m.UpdateTicker(tk, Update{Confidence: f64(0.3)}); err != nil {
			t.Fatalf("UpdateTicker failed: %v", err)
		}
	}
	if _, err := m.UpdateTicker("NVDA", Update{Confidence: f64(0.9), Conviction: f64(0.9)}); err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	until := int64(60_000)
	if _, err := m.UpdateTicker("TSLA", Update{Status: status(domain.StatusCooldown), CooldownUntil: &until}); err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}

	stats := m.Stats()
	if stats.TotalTickers != 5 {
		t.Errorf("total: got %d, want 5", stats.TotalTickers)
	}
	if stats.ByStatus[domain.StatusReady] != 3 {
		t.Errorf("READY count: got %d, want 3", stats.ByStatus[domain.StatusReady])
	}
	if stats.ByStatus[domain.StatusSet] != 1 {
		t.Errorf("SET count: got %d, want 1", stats.ByStatus[domain.StatusSet])
	}
	if stats.InCooldown != 1 {
		t.Errorf("inCooldown: got %d, want 1", stats.InCooldown)
	}
	wantMean := (0.3*3 + 0.9 + 0) / 5
	if diff := stats.MeanConfidence - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("meanConfidence: got %v, want %v", stats.MeanConfidence, wantMean)
	}
}

func TestExpireCooldowns_Sweep(t *testing.T) {
	clk := clock.NewFake(0)
	m := newTestManager(clk)

	until := int64(1000)
	if _, err := m.UpdateTicker("SPY", Update{Status: status(domain.StatusCooldown), CooldownUntil: &until}); err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}

	if n := m.ExpireCooldowns(); n != 0 {
		t.Errorf("sweep before expiry reverted %d tickers", n)
	}
	clk.Advance(1500 * time.Millisecond)
	if n := m.ExpireCooldowns(); n != 1 {
		t.Errorf("sweep after expiry: got %d, want 1", n)
	}
	if got := m.Get("SPY").Status; got != domain.StatusReady {
		t.Errorf("status after sweep: got %s, want READY", got)
	}
}

func TestSnapshot_DerivedCounters(t *testing.T) {
	clk := clock.NewFake(0)
	m := newTestManager(clk)

	pos := "pos-1"
	if _, err := m.UpdateTicker("SPY", Update{PositionID: &pos}); err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	if _, err := m.UpdateTicker("QQQ", Update{Confidence: f64(0.2)}); err != nil {
		t.Fatalf("UpdateTicker failed: %v", err)
	}
	m.SetPortfolioHeat(0.12)

	snap := m.Snapshot()
	if snap.ActiveTickers != 2 {
		t.Errorf("activeTickers: got %d, want 2", snap.ActiveTickers)
	}
	if snap.ActiveTrades != 1 {
		t.Errorf("activeTrades: got %d, want 1", snap.ActiveTrades)
	}
	if snap.TotalSignals != 2 {
		t.Errorf("totalSignals: got %d, want 2", snap.TotalSignals)
	}
	if snap.PortfolioHeat != 0.12 {
		t.Errorf("portfolioHeat: got %v", snap.PortfolioHeat)
	}

	// Snapshot is a deep copy; mutating it must not touch the manager.
	snap.Tickers["SPY"].Confidence = 0.99
	if got := m.Get("SPY").Confidence; got == 0.99 {
		t.Error("snapshot shares state with the manager")
	}
}

func TestHydrate_ReplacesState(t *testing.T) {
	clk := clock.NewFake(5000)
	m := newTestManager(clk)

	m.Hydrate([]*domain.TickerState{
		{Ticker: "SPY", Status: domain.StatusSet, Confidence: 0.7, StateEntryTime: 1000, LastUpdate: 4000},
	})

	st := m.Get("SPY")
	if st == nil || st.Status != domain.StatusSet || st.Confidence != 0.7 {
		t.Fatalf("hydrated state wrong: %+v", st)
	}
}
