package scaler

import "ticker-orchestrator/internal/domain"

// Strategy selects the worker a ticker is assigned to.
type Strategy string

const (
	StrategyRoundRobin  Strategy = "round_robin"  // fewest assigned tickers
	StrategyLeastLoaded Strategy = "least_loaded" // lowest current load
	StrategyWeighted    Strategy = "weighted"     // composite health score
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyLeastLoaded, StrategyWeighted:
		return true
	}
	return false
}

// pick selects a worker from candidates under the strategy. Returns nil
// for an empty candidate list. Candidates arrive sorted by id, so ties
// resolve deterministically.
func pick(strategy Strategy, candidates []*domain.WorkerNode) *domain.WorkerNode {
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, w := range candidates[1:] {
		switch strategy {
		case StrategyLeastLoaded:
			if w.CurrentLoad < best.CurrentLoad {
				best = w
			}
		case StrategyWeighted:
			if weightedScore(w) > weightedScore(best) {
				best = w
			}
		default: // round robin
			if len(w.AssignedTickers) < len(best.AssignedTickers) {
				best = w
			}
		}
	}
	return best
}

// weightedScore rates a worker for assignment; higher is better. Latency,
// error rate, resource usage and current load all penalize.
func weightedScore(w *domain.WorkerNode) float64 {
	score := 100.0
	score -= w.Metrics.AverageLatency / 10
	score -= w.Metrics.ErrorRate * 100
	score -= (w.Metrics.CPUUsage + w.Metrics.MemoryUsage) * 25
	score -= w.CurrentLoad * 50
	return score
}

// spareCapacity filters candidates down to workers that can take another
// ticker without exceeding capacity.
func spareCapacity(candidates []*domain.WorkerNode) []*domain.WorkerNode {
	out := make([]*domain.WorkerNode, 0, len(candidates))
	for _, w := range candidates {
		if len(w.AssignedTickers) < w.MaxCapacity {
			out = append(out, w)
		}
	}
	return out
}
