// Package risk gates trade admission and drives forced portfolio actions.
// It is independent of the scheduler; the orchestrator consults it before
// executing a GO decision.
package risk

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/events"
)

// Config holds the risk limits.
type Config struct {
	// MaxDrawdownPct halts trading when equity falls this far below the
	// peak. Fatal: requires an explicit Reset to resume.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" validate:"gt=0,lte=1"`
	// HeatAlertPct raises a non-blocking alert when portfolio heat exceeds it.
	HeatAlertPct float64 `yaml:"heat_alert_pct" validate:"gt=0,lte=1"`
	// MinBalance rejects trades below this account balance.
	MinBalance float64 `yaml:"min_balance" validate:"gte=0"`
	// BaseRiskPct sizes a trade as a fraction of balance before tightening.
	BaseRiskPct float64 `yaml:"base_risk_pct" validate:"gt=0,lte=1"`
	// MaxConsecutiveLosses blocks new trades once the streak reaches it.
	MaxConsecutiveLosses int `yaml:"max_consecutive_losses" validate:"gt=0"`

	// Stop-loss thresholds tiered by entry confidence: high-confidence
	// positions get more room before a forced close.
	StopLossHighPct float64 `yaml:"stop_loss_high_pct" validate:"gt=0,lte=1"`
	StopLossMidPct  float64 `yaml:"stop_loss_mid_pct" validate:"gt=0,lte=1"`
	StopLossLowPct  float64 `yaml:"stop_loss_low_pct" validate:"gt=0,lte=1"`
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxDrawdownPct:       0.10,
		HeatAlertPct:         0.15,
		MinBalance:           1000,
		BaseRiskPct:          0.02,
		MaxConsecutiveLosses: 3,
		StopLossHighPct:      0.15,
		StopLossMidPct:       0.10,
		StopLossLowPct:       0.05,
	}
}

// Confidence tier boundaries for stop-loss selection.
const (
	highConfidence = 0.8
	midConfidence  = 0.6
)

// Manager tracks peak equity and loss streaks and enforces the limits.
type Manager struct {
	mu  sync.Mutex
	cfg Config
	clk clock.Clock
	bus *events.Bus
	log zerolog.Logger

	peakEquity        decimal.Decimal // high-water mark, only moves up
	lastDrawdown      float64         // drawdown at the last enforcement pass
	consecutiveLosses int
	halted            bool
	haltReason        string
}

// NewManager creates a risk manager.
func NewManager(cfg Config, clk clock.Clock, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		clk: clk,
		bus: bus,
		log: log.With().Str("component", "risk_manager").Logger(),
	}
}

// ValidateTrade gates trade admission against balance, drawdown and the
// loss streak. The returned MaxPositionSize is the binding output; it
// tightens as the loss streak grows.
func (m *Manager) ValidateTrade(balance decimal.Decimal) domain.TradeDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return domain.TradeDecision{Reason: "trading halted: " + m.haltReason}
	}
	if balance.LessThan(decimal.NewFromFloat(m.cfg.MinBalance)) {
		return domain.TradeDecision{Reason: "balance below minimum"}
	}
	if m.consecutiveLosses >= m.cfg.MaxConsecutiveLosses {
		return domain.TradeDecision{Reason: "consecutive loss limit reached"}
	}
	if !m.peakEquity.IsZero() {
		dd := m.peakEquity.Sub(balance).Div(m.peakEquity)
		if dd.GreaterThanOrEqual(decimal.NewFromFloat(m.cfg.MaxDrawdownPct)) {
			return domain.TradeDecision{Reason: "drawdown at limit"}
		}
	}

	// Base size, halved for every loss in the current streak.
	size := balance.Mul(decimal.NewFromFloat(m.cfg.BaseRiskPct))
	for i := 0; i < m.consecutiveLosses; i++ {
		size = size.Div(decimal.NewFromInt(2))
	}

	return domain.TradeDecision{Approved: true, MaxPositionSize: size, Reason: "ok"}
}

// RecordTradeResult updates the loss streak from a closed trade's pnl.
func (m *Manager) RecordTradeResult(pnl decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pnl.IsNegative() {
		m.consecutiveLosses++
	} else {
		m.consecutiveLosses = 0
	}
}

// EnforceRiskLimits runs portfolio-level enforcement against the full open
// position set. Peak equity ratchets up first; it never moves down.
// At max drawdown the result is HALT_TRADING plus one CLOSE_POSITION per
// open position and the manager latches halted until Reset.
func (m *Manager) EnforceRiskLimits(equity decimal.Decimal, positions []*domain.Position) []domain.RiskAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.NowMilli()
	if equity.GreaterThan(m.peakEquity) {
		m.peakEquity = equity
	}

	var actions []domain.RiskAction

	if !m.peakEquity.IsZero() {
		m.lastDrawdown, _ = m.peakEquity.Sub(equity).Div(m.peakEquity).Float64()
	}

	if !m.peakEquity.IsZero() && !m.halted {
		dd := m.peakEquity.Sub(equity).Div(m.peakEquity)
		if dd.GreaterThanOrEqual(decimal.NewFromFloat(m.cfg.MaxDrawdownPct)) {
			m.halted = true
			m.haltReason = "max drawdown breached"
			m.log.Error().Str("drawdown", dd.String()).Msg("halting trading")
			actions = append(actions, domain.RiskAction{
				Type:      domain.ActionHaltTrading,
				Reason:    m.haltReason,
				Timestamp: now,
			})
			for _, p := range positions {
				actions = append(actions, domain.RiskAction{
					Type:       domain.ActionClosePosition,
					PositionID: p.PositionID,
					Ticker:     p.Ticker,
					Reason:     "close-all on trading halt",
					Timestamp:  now,
				})
			}
			m.publish(domain.Event{
				Type:      domain.EventTradingHalted,
				Reason:    m.haltReason,
				Timestamp: now,
			})
			return actions
		}
	}

	if heat := Heat(equity, positions); heat > m.cfg.HeatAlertPct {
		actions = append(actions, domain.RiskAction{
			Type:      domain.ActionAlert,
			Reason:    "portfolio heat elevated",
			Timestamp: now,
		})
		m.publish(domain.Event{
			Type:      domain.EventAlertRaised,
			Reason:    "portfolio heat elevated",
			Timestamp: now,
		})
	}

	for _, p := range positions {
		if !p.PnL.IsNegative() {
			continue
		}
		notional := p.EntryPrice.Mul(p.Size)
		if notional.IsZero() {
			continue
		}
		lossPct := p.PnL.Neg().Div(notional)
		if lossPct.GreaterThanOrEqual(decimal.NewFromFloat(m.stopLossFor(p.Confidence))) {
			actions = append(actions, domain.RiskAction{
				Type:       domain.ActionClosePosition,
				PositionID: p.PositionID,
				Ticker:     p.Ticker,
				Reason:     "stop loss breached",
				Timestamp:  now,
			})
		}
	}

	return actions
}

// Heat computes portfolio heat: capital at risk across open positions as a
// fraction of equity.
func Heat(equity decimal.Decimal, positions []*domain.Position) float64 {
	if equity.IsZero() {
		return 0
	}
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Value)
	}
	heat, _ := total.Div(equity).Float64()
	return heat
}

// Halted reports whether trading is halted.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Reset clears a halt after operator intervention. This is the only path
// out of a max-drawdown halt; it also resets the peak-equity high-water
// mark and the loss streak.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.halted = false
	m.haltReason = ""
	m.peakEquity = decimal.Zero
	m.lastDrawdown = 0
	m.consecutiveLosses = 0
	m.log.Info().Msg("risk manager reset")
}

// CurrentDrawdown returns the drawdown fraction computed by the last
// enforcement pass. Zero until equity has been reported at least once.
func (m *Manager) CurrentDrawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDrawdown
}

// PeakEquity returns the current high-water mark.
func (m *Manager) PeakEquity() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakEquity
}

// stopLossFor returns the loss fraction that forces a close, tiered by the
// position's entry confidence.
func (m *Manager) stopLossFor(confidence float64) float64 {
	switch {
	case confidence >= highConfidence:
		return m.cfg.StopLossHighPct
	case confidence >= midConfidence:
		return m.cfg.StopLossMidPct
	default:
		return m.cfg.StopLossLowPct
	}
}

func (m *Manager) publish(e domain.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}
