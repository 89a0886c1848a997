// Package priority scores tickers and tasks for urgency, maintains the
// bounded pending-task queue and enforces resource admission control.
package priority

import (
	"sort"

	"ticker-orchestrator/internal/domain"
)

// Score weights for the ticker priority formula. A weighted sum is used so
// that no single cheap heuristic dominates the ordering.
const (
	weightConfigured = 100.0
	weightConfidence = 50.0
	weightConviction = 30.0
	weightPosition   = 25.0
	maxStateAgeBonus = 50.0
	maxGammaTerm     = 50.0
	gammaScale       = 10.0
	maxTaskAgeBonus  = 25.0
	urgencyBonus     = 50.0
)

var statusBonus = map[domain.TickerStatus]float64{
	domain.StatusGo:       100,
	domain.StatusSet:      75,
	domain.StatusReady:    50,
	domain.StatusCooldown: 10, // de-prioritized, never excluded: still needs expiry re-evaluation
}

var zoneBonus = map[domain.FibZone]float64{
	domain.ZoneCompression:   20,
	domain.ZoneMidExpansion:  10,
	domain.ZoneFullExpansion: 0,
	domain.ZoneOverExtension: -25,
	domain.ZoneExhaustion:    -50, // avoid entries here
}

var taskBase = map[domain.TaskType]float64{
	domain.TaskTradeExecution:   100,
	domain.TaskRiskCheck:        90,
	domain.TaskPositionUpdate:   80,
	domain.TaskSignalProcessing: 70,
	domain.TaskMarketDataUpdate: 60,
	domain.TaskAnalytics:        50,
}

// Scorer computes ticker and task priority scores.
type Scorer struct {
	weights map[string]float64 // configured per-ticker weight, default 1.0
}

// NewScorer creates a scorer with the configured per-ticker weights.
func NewScorer(weights map[string]float64) *Scorer {
	return &Scorer{weights: weights}
}

// Weight returns the configured weight for a ticker (1.0 if unset).
func (s *Scorer) Weight(ticker string) float64 {
	if w, ok := s.weights[ticker]; ok {
		return w
	}
	return 1.0
}

// TickerScore computes the priority score for one ticker state.
// Floors at 0.
func (s *Scorer) TickerScore(t *domain.TickerState, now int64) float64 {
	score := weightConfigured * s.Weight(t.Ticker)
	score += weightConfidence * t.Confidence
	score += weightConviction * t.Conviction
	score += statusBonus[t.Status]
	score += zoneBonus[t.FibZone]
	score += gammaTerm(t.GammaExposure)

	minutes := float64(now-t.StateEntryTime) / 60_000
	if minutes > maxStateAgeBonus {
		minutes = maxStateAgeBonus
	}
	if minutes > 0 {
		score += minutes
	}

	if t.PositionID != nil {
		score += weightPosition
	}

	if score < 0 {
		return 0
	}
	return score
}

// TaskScore computes the priority score for a queued task. The age bonus is
// bounded; starvation protection comes from re-scoring queued tasks
// periodically so old tasks keep their full bonus against fresh arrivals.
func (s *Scorer) TaskScore(task *domain.Task, now int64) float64 {
	score := taskBase[task.Type]
	if task.Urgent {
		score += urgencyBonus
	}

	ageMinutes := float64(now-task.EnqueuedAt) / 60_000
	if ageMinutes > maxTaskAgeBonus {
		ageMinutes = maxTaskAgeBonus
	}
	if ageMinutes > 0 {
		score += ageMinutes
	}

	if score < 0 {
		return 0
	}
	return score
}

// TickerPriority is one entry of a prioritized ticker ranking.
type TickerPriority struct {
	Ticker string
	Score  float64
}

// PrioritizeTickers ranks ticker states by descending score. Equal scores
// keep their input order (stable sort).
func (s *Scorer) PrioritizeTickers(states []*domain.TickerState, now int64) []TickerPriority {
	out := make([]TickerPriority, 0, len(states))
	for _, t := range states {
		out = append(out, TickerPriority{Ticker: t.Ticker, Score: s.TickerScore(t, now)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// gammaTerm rewards negative gamma exposure (trend-acceleration regime) and
// penalizes positive exposure (pinning risk) proportionally, clamped.
func gammaTerm(gamma float64) float64 {
	term := -gamma * gammaScale
	if term > maxGammaTerm {
		return maxGammaTerm
	}
	if term < -maxGammaTerm {
		return -maxGammaTerm
	}
	return term
}
