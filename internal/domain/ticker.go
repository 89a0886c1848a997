package domain

import "encoding/json"

// TickerStatus is the lifecycle state of a tracked instrument.
type TickerStatus string

const (
	StatusReady    TickerStatus = "READY"
	StatusSet      TickerStatus = "SET"
	StatusGo       TickerStatus = "GO"
	StatusCooldown TickerStatus = "COOLDOWN"
)

// Valid reports whether s is one of the known ticker statuses.
func (s TickerStatus) Valid() bool {
	switch s {
	case StatusReady, StatusSet, StatusGo, StatusCooldown:
		return true
	}
	return false
}

// FibZone is the price-expansion regime label attached to a ticker.
type FibZone string

const (
	ZoneCompression   FibZone = "COMPRESSION"
	ZoneMidExpansion  FibZone = "MID_EXPANSION"
	ZoneFullExpansion FibZone = "FULL_EXPANSION"
	ZoneOverExtension FibZone = "OVER_EXTENSION"
	ZoneExhaustion    FibZone = "EXHAUSTION"
)

// Valid reports whether z is one of the known zones.
func (z FibZone) Valid() bool {
	switch z {
	case ZoneCompression, ZoneMidExpansion, ZoneFullExpansion, ZoneOverExtension, ZoneExhaustion:
		return true
	}
	return false
}

// TickerState is the canonical state of one tracked instrument.
// Corresponds to one row in ticker_states.
type TickerState struct {
	Ticker            string          // unique instrument identifier
	Status            TickerStatus    // READY | SET | GO | COOLDOWN
	Confidence        float64         // [0,1]
	Conviction        float64         // [0,1]
	FibZone           FibZone         // price-expansion regime
	GammaExposure     float64         // signed; negative favors trend acceleration
	RecommendedOption json.RawMessage // opaque payload from the recommendation collaborator (nullable)
	PositionID        *string         // weak reference to an open position (nullable)
	StateEntryTime    int64           // last status change, Unix ms
	CooldownUntil     *int64          // set iff Status == COOLDOWN, Unix ms
	LastUpdate        int64           // last mutation, Unix ms
	SignalsProcessed  int64           // updates applied to this ticker
}

// Clone returns a deep copy of the ticker state.
func (t *TickerState) Clone() *TickerState {
	cp := *t
	if t.CooldownUntil != nil {
		v := *t.CooldownUntil
		cp.CooldownUntil = &v
	}
	if t.PositionID != nil {
		v := *t.PositionID
		cp.PositionID = &v
	}
	if t.RecommendedOption != nil {
		cp.RecommendedOption = append(json.RawMessage(nil), t.RecommendedOption...)
	}
	return &cp
}

// MultiTickerState is a read-only aggregate view over all tracked tickers
// plus derived counters. Produced by the ticker manager on demand.
type MultiTickerState struct {
	OrchestratorID string
	Tickers        map[string]*TickerState
	ActiveTickers  int
	TotalSignals   int64
	ActiveTrades   int
	PortfolioHeat  float64 // capital at risk / equity
	Health         string  // healthy | degraded | halted
	GeneratedAt    int64   // Unix ms
}

// TickerStats is the on-demand statistics summary.
type TickerStats struct {
	TotalTickers   int
	ByStatus       map[TickerStatus]int
	MeanConfidence float64
	InCooldown     int
}
