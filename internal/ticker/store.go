// Package ticker implements the per-instrument Ready→Set→Go→Cooldown state
// machine. Store is the pure state container; Manager layers validation,
// events and statistics on top and is the only writer of ticker state.
package ticker

import (
	"ticker-orchestrator/internal/domain"
)

// Store holds the canonical state of every tracked ticker. Pure data plus
// transition bookkeeping, no I/O. Not goroutine-safe; the Manager
// serializes access.
type Store struct {
	tickers map[string]*domain.TickerState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tickers: make(map[string]*domain.TickerState)}
}

// Get returns the live state for a ticker, or nil if untracked.
func (s *Store) Get(ticker string) *domain.TickerState {
	return s.tickers[ticker]
}

// GetOrInit returns the state for a ticker, initializing it to READY on
// first reference. The second return reports whether it was created.
func (s *Store) GetOrInit(ticker string, now int64) (*domain.TickerState, bool) {
	if t, ok := s.tickers[ticker]; ok {
		return t, false
	}
	t := &domain.TickerState{
		Ticker:         ticker,
		Status:         domain.StatusReady,
		FibZone:        domain.ZoneCompression,
		StateEntryTime: now,
		LastUpdate:     now,
	}
	s.tickers[ticker] = t
	return t, true
}

// Put replaces the state for a ticker. Used when hydrating from recovery.
func (s *Store) Put(t *domain.TickerState) {
	s.tickers[t.Ticker] = t.Clone()
}

// Len returns the number of tracked tickers.
func (s *Store) Len() int {
	return len(s.tickers)
}

// Each calls fn for every tracked ticker. The callback receives the live
// state and must not retain it.
func (s *Store) Each(fn func(*domain.TickerState)) {
	for _, t := range s.tickers {
		fn(t)
	}
}

// setStatus moves t into a new status and returns the transition record.
// CooldownUntil is maintained here so that it is set iff the new status is
// COOLDOWN. cooldownUntil is ignored for non-cooldown targets.
func setStatus(t *domain.TickerState, to domain.TickerStatus, cooldownUntil *int64, now int64) domain.StateTransition {
	tr := domain.StateTransition{
		Ticker:     t.Ticker,
		From:       t.Status,
		To:         to,
		DurationMs: now - t.StateEntryTime,
		Timestamp:  now,
	}
	t.Status = to
	t.StateEntryTime = now
	if to == domain.StatusCooldown {
		t.CooldownUntil = cooldownUntil
	} else {
		t.CooldownUntil = nil
	}
	return tr
}

// cooldownExpired reports whether t is parked in COOLDOWN past its expiry.
func cooldownExpired(t *domain.TickerState, now int64) bool {
	return t.Status == domain.StatusCooldown && t.CooldownUntil != nil && *t.CooldownUntil <= now
}
