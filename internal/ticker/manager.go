package ticker

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/events"
)

// Validation errors. Rejected updates apply no partial mutation.
var (
	ErrConfidenceRange = errors.New("confidence out of range [0,1]")
	ErrConvictionRange = errors.New("conviction out of range [0,1]")
	ErrUnknownStatus   = errors.New("unknown ticker status")
	ErrUnknownZone     = errors.New("unknown fib zone")
)

// Config holds the state machine thresholds.
type Config struct {
	// SET is entered from READY once both scores reach these values.
	SetConfidence float64 `yaml:"set_confidence" validate:"gte=0,lte=1"`
	SetConviction float64 `yaml:"set_conviction" validate:"gte=0,lte=1"`
	// GO is entered from SET once both scores reach these values.
	GoConfidence float64 `yaml:"go_confidence" validate:"gte=0,lte=1"`
	GoConviction float64 `yaml:"go_conviction" validate:"gte=0,lte=1"`
	// CooldownMs is the default cooldown duration after a GO resolves.
	CooldownMs int64 `yaml:"cooldown_ms" validate:"gt=0"`
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		SetConfidence: 0.6,
		SetConviction: 0.6,
		GoConfidence:  0.8,
		GoConviction:  0.8,
		CooldownMs:    5 * 60 * 1000,
	}
}

// Update is a partial mutation of one ticker's state. Nil fields are left
// untouched.
type Update struct {
	Confidence        *float64
	Conviction        *float64
	FibZone           *domain.FibZone
	GammaExposure     *float64
	RecommendedOption json.RawMessage
	PositionID        *string
	ClearPosition     bool
	// Status forces an explicit transition (e.g. GO → COOLDOWN when a trade
	// resolves). Threshold evaluation is skipped when set.
	Status *domain.TickerStatus
	// CooldownUntil overrides the default cooldown expiry. Only meaningful
	// together with Status = COOLDOWN.
	CooldownUntil *int64
}

// Manager owns the ticker store. All mutation goes through validated entry
// points; reads return deep copies. The mutex serializes updates, which
// preserves per-ticker arrival order.
type Manager struct {
	mu    sync.Mutex
	store *Store
	cfg   Config
	clk   clock.Clock
	bus   *events.Bus
	log   zerolog.Logger

	orchestratorID string
	pending        []domain.StateTransition
	portfolioHeat  float64
	health         string
}

// NewManager creates a ticker state manager.
func NewManager(orchestratorID string, cfg Config, clk clock.Clock, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		store:          NewStore(),
		cfg:            cfg,
		clk:            clk,
		bus:            bus,
		log:            log.With().Str("component", "ticker_manager").Logger(),
		orchestratorID: orchestratorID,
		health:         "healthy",
	}
}

// UpdateTicker validates and applies a partial update, running the state
// machine. Unknown tickers are initialized to READY first. Returns the
// post-update state (deep copy).
func (m *Manager) UpdateTicker(ticker string, upd Update) (*domain.TickerState, error) {
	if ticker == "" {
		return nil, fmt.Errorf("update ticker: empty ticker")
	}
	if err := validate(upd); err != nil {
		return nil, fmt.Errorf("update ticker %s: %w", ticker, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.NowMilli()
	t, created := m.store.GetOrInit(ticker, now)
	if created {
		m.log.Debug().Str("ticker", ticker).Msg("initialized ticker")
	}

	m.expireLocked(t, now)
	prevStatus := t.Status

	// Merge fields.
	if upd.Confidence != nil {
		t.Confidence = *upd.Confidence
	}
	if upd.Conviction != nil {
		t.Conviction = *upd.Conviction
	}
	if upd.FibZone != nil {
		t.FibZone = *upd.FibZone
	}
	if upd.GammaExposure != nil {
		t.GammaExposure = *upd.GammaExposure
	}
	if upd.RecommendedOption != nil {
		t.RecommendedOption = append(json.RawMessage(nil), upd.RecommendedOption...)
	}
	if upd.ClearPosition {
		t.PositionID = nil
	} else if upd.PositionID != nil {
		v := *upd.PositionID
		t.PositionID = &v
	}
	t.LastUpdate = now
	t.SignalsProcessed++

	// Run the state machine.
	next := t.Status
	var cooldownUntil *int64
	if upd.Status != nil {
		next = *upd.Status
		if next == domain.StatusCooldown {
			until := now + m.cfg.CooldownMs
			if upd.CooldownUntil != nil {
				until = *upd.CooldownUntil
			}
			cooldownUntil = &until
		}
	} else {
		switch t.Status {
		case domain.StatusReady:
			if t.Confidence >= m.cfg.SetConfidence && t.Conviction >= m.cfg.SetConviction {
				next = domain.StatusSet
			}
		case domain.StatusSet:
			if t.Confidence >= m.cfg.GoConfidence && t.Conviction >= m.cfg.GoConviction {
				next = domain.StatusGo
			}
		}
	}

	if next != prevStatus {
		m.recordTransition(setStatus(t, next, cooldownUntil, now))
	}

	m.publish(domain.Event{
		Type:      domain.EventSignalProcessed,
		Ticker:    ticker,
		Timestamp: now,
	})

	return t.Clone(), nil
}

// Get returns the current state of a ticker (deep copy), expiring a stale
// cooldown first. Returns nil if the ticker is untracked.
func (m *Manager) Get(ticker string) *domain.TickerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.store.Get(ticker)
	if t == nil {
		return nil
	}
	m.expireLocked(t, m.clk.NowMilli())
	return t.Clone()
}

// Snapshot returns a read-only aggregate view over all tickers with the
// derived counters.
func (m *Manager) Snapshot() *domain.MultiTickerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.NowMilli()
	out := &domain.MultiTickerState{
		OrchestratorID: m.orchestratorID,
		Tickers:        make(map[string]*domain.TickerState, m.store.Len()),
		PortfolioHeat:  m.portfolioHeat,
		Health:         m.health,
		GeneratedAt:    now,
	}
	m.store.Each(func(t *domain.TickerState) {
		m.expireLocked(t, now)
		out.Tickers[t.Ticker] = t.Clone()
		out.TotalSignals += t.SignalsProcessed
		if t.PositionID != nil {
			out.ActiveTrades++
		}
	})
	out.ActiveTickers = len(out.Tickers)
	return out
}

// Stats computes the statistics summary on demand. Nothing is cached
// incrementally, so the numbers cannot drift from the store.
func (m *Manager) Stats() domain.TickerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.NowMilli()
	stats := domain.TickerStats{
		ByStatus: make(map[domain.TickerStatus]int),
	}
	var confidenceSum float64
	m.store.Each(func(t *domain.TickerState) {
		m.expireLocked(t, now)
		stats.TotalTickers++
		stats.ByStatus[t.Status]++
		confidenceSum += t.Confidence
		if t.Status == domain.StatusCooldown {
			stats.InCooldown++
		}
	})
	if stats.TotalTickers > 0 {
		stats.MeanConfidence = confidenceSum / float64(stats.TotalTickers)
	}
	return stats
}

// ExpireCooldowns sweeps every ticker for stale cooldowns. The lazy expiry
// on read already guarantees correctness; the sweep keeps long-idle tickers
// from sitting in COOLDOWN between reads. Returns the number reverted.
func (m *Manager) ExpireCooldowns() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.NowMilli()
	var expired int
	m.store.Each(func(t *domain.TickerState) {
		if m.expireLocked(t, now) {
			expired++
		}
	})
	return expired
}

// DrainTransitions returns and clears the buffered transition records.
// Consumed by the persistence path.
func (m *Manager) DrainTransitions() []domain.StateTransition {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.pending
	m.pending = nil
	return out
}

// Hydrate seeds the store from recovered ticker states. Existing entries
// are replaced. Used once at startup before any updates are accepted.
func (m *Manager) Hydrate(tickers []*domain.TickerState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range tickers {
		m.store.Put(t)
	}
}

// SetPortfolioHeat records the latest portfolio heat for snapshots.
func (m *Manager) SetPortfolioHeat(heat float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolioHeat = heat
}

// SetHealth records the system health summary for snapshots.
func (m *Manager) SetHealth(health string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = health
}

// expireLocked lazily reverts an expired COOLDOWN to READY. Caller holds
// the lock.
func (m *Manager) expireLocked(t *domain.TickerState, now int64) bool {
	if !cooldownExpired(t, now) {
		return false
	}
	m.recordTransition(setStatus(t, domain.StatusReady, nil, now))
	return true
}

func (m *Manager) recordTransition(tr domain.StateTransition) {
	m.pending = append(m.pending, tr)
	m.log.Debug().
		Str("ticker", tr.Ticker).
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Int64("duration_ms", tr.DurationMs).
		Msg("state transition")
	m.publish(domain.Event{
		Type:      domain.EventStateTransition,
		Ticker:    tr.Ticker,
		Payload:   tr,
		Timestamp: tr.Timestamp,
	})
}

func (m *Manager) publish(e domain.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

// validate checks every field of upd before anything is applied.
func validate(upd Update) error {
	if upd.Confidence != nil && (*upd.Confidence < 0 || *upd.Confidence > 1) {
		return ErrConfidenceRange
	}
	if upd.Conviction != nil && (*upd.Conviction < 0 || *upd.Conviction > 1) {
		return ErrConvictionRange
	}
	if upd.FibZone != nil && !upd.FibZone.Valid() {
		return ErrUnknownZone
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return ErrUnknownStatus
	}
	return nil
}
