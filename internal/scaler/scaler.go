package scaler

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/events"
)

var (
	// ErrUnknownWorker is returned for a heartbeat from an unregistered id.
	ErrUnknownWorker = errors.New("unknown worker id")
	// ErrNoWorkers is returned when assignment finds an empty pool.
	ErrNoWorkers = errors.New("no workers available")
)

// Config holds pool bounds, thresholds and timers.
type Config struct {
	MinWorkers     int      `yaml:"min_workers" validate:"gt=0"`
	MaxWorkers     int      `yaml:"max_workers" validate:"gtefield=MinWorkers"`
	WorkerCapacity int      `yaml:"worker_capacity" validate:"gt=0"`
	Strategy       Strategy `yaml:"strategy" validate:"omitempty,oneof=round_robin least_loaded weighted"`

	// HeartbeatTimeoutMs marks a worker failed once its heartbeat is older.
	HeartbeatTimeoutMs int64 `yaml:"heartbeat_timeout_ms" validate:"gt=0"`
	// ScaleCooldownMs gates scale evaluations to prevent oscillation.
	ScaleCooldownMs int64 `yaml:"scale_cooldown_ms" validate:"gt=0"`

	// Scale-up triggers when any of these is exceeded.
	ScaleUpCPU       float64 `yaml:"scale_up_cpu"`
	ScaleUpLatencyMs float64 `yaml:"scale_up_latency_ms"`
	ScaleUpLoad      float64 `yaml:"scale_up_load"`
	// Scale-down requires all of these to be comfortably undercut.
	ScaleDownCPU       float64 `yaml:"scale_down_cpu"`
	ScaleDownLatencyMs float64 `yaml:"scale_down_latency_ms"`
	ScaleDownLoad      float64 `yaml:"scale_down_load"`
}

// DefaultConfig returns the pool settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		MinWorkers:         2,
		MaxWorkers:         10,
		WorkerCapacity:     25,
		Strategy:           StrategyRoundRobin,
		HeartbeatTimeoutMs: 30_000,
		ScaleCooldownMs:    60_000,
		ScaleUpCPU:         0.80,
		ScaleUpLatencyMs:   500,
		ScaleUpLoad:        0.85,
		ScaleDownCPU:       0.30,
		ScaleDownLatencyMs: 100,
		ScaleDownLoad:      0.40,
	}
}

// Scaler maintains minWorkers..maxWorkers nodes and the ticker→worker
// assignment. Scaling actions are serialized by the cooldown timer.
type Scaler struct {
	mu   sync.Mutex
	pool *pool
	cfg  Config
	clk  clock.Clock
	bus  *events.Bus
	log  zerolog.Logger

	lastScaleAction int64
}

// New creates a scaler with MinWorkers active nodes.
func New(cfg Config, clk clock.Clock, bus *events.Bus, log zerolog.Logger) *Scaler {
	s := &Scaler{
		pool: newPool(cfg.WorkerCapacity),
		cfg:  cfg,
		clk:  clk,
		bus:  bus,
		log:  log.With().Str("component", "scaler").Logger(),
	}
	now := clk.NowMilli()
	for i := 0; i < cfg.MinWorkers; i++ {
		s.pool.addWorker(now)
	}
	return s
}

// AssignTicker binds a ticker to a worker under the configured strategy.
// Already-assigned tickers keep their worker. When no worker has spare
// capacity the pool scales up if below max, otherwise the least-loaded
// worker is force-assigned past capacity (degradation over rejection).
func (s *Scaler) AssignTicker(ticker string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pool.assignment[ticker]; ok {
		if w, ok := s.pool.workers[id]; ok && w.Status != domain.WorkerFailed {
			return id, nil
		}
	}

	w, err := s.selectWorkerLocked()
	if err != nil {
		return "", fmt.Errorf("assign ticker %s: %w", ticker, err)
	}
	s.pool.assign(ticker, w)
	return w.ID, nil
}

// AssignedWorker returns the worker currently holding a ticker, or "".
func (s *Scaler) AssignedWorker(ticker string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.assignment[ticker]
}

// Heartbeat records a worker's health sample. A heartbeat from a failed
// worker flips it back to active with its remaining assignments intact;
// tickers already moved elsewhere are not pulled back (load-neutral
// recovery).
func (s *Scaler) Heartbeat(workerID string, metrics domain.WorkerMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.pool.workers[workerID]
	if !ok {
		return fmt.Errorf("heartbeat: %w: %s", ErrUnknownWorker, workerID)
	}

	now := s.clk.NowMilli()
	w.LastHeartbeat = now
	w.Metrics = metrics

	if w.Status == domain.WorkerFailed {
		w.Status = domain.WorkerActive
		s.log.Info().Str("worker", workerID).Msg("worker recovered")
		s.publish(domain.Event{
			Type:      domain.EventWorkerRecovered,
			WorkerID:  workerID,
			Timestamp: now,
		})
	}
	return nil
}

// CheckFailures marks workers with stale heartbeats failed and immediately
// reassigns their tickers to surviving workers. Returns failed ids.
func (s *Scaler) CheckFailures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.NowMilli()
	var failed []string
	for _, w := range s.pool.active() {
		if now-w.LastHeartbeat <= s.cfg.HeartbeatTimeoutMs {
			continue
		}
		w.Status = domain.WorkerFailed
		failed = append(failed, w.ID)
		s.log.Warn().Str("worker", w.ID).Int64("stale_ms", now-w.LastHeartbeat).Msg("worker failed")
		s.publish(domain.Event{
			Type:      domain.EventWorkerFailed,
			WorkerID:  w.ID,
			Reason:    "heartbeat timeout",
			Timestamp: now,
		})
		s.reassignLocked(w)
	}
	return failed
}

// EvaluateScaling runs one cooldown-gated scale decision. Returns the
// action taken: "scale_up", "scale_down" or "".
func (s *Scaler) EvaluateScaling() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.NowMilli()
	if now-s.lastScaleAction < s.cfg.ScaleCooldownMs {
		return ""
	}

	active := s.pool.active()
	if len(active) == 0 {
		return ""
	}

	var cpu, latency, load float64
	for _, w := range active {
		cpu += w.Metrics.CPUUsage
		latency += w.Metrics.AverageLatency
		load += w.CurrentLoad
	}
	n := float64(len(active))
	cpu, latency, load = cpu/n, latency/n, load/n

	if cpu > s.cfg.ScaleUpCPU || latency > s.cfg.ScaleUpLatencyMs || load > s.cfg.ScaleUpLoad {
		if s.pool.size() >= s.cfg.MaxWorkers {
			return ""
		}
		w := s.pool.addWorker(now)
		s.lastScaleAction = now
		s.log.Info().Str("worker", w.ID).Float64("cpu", cpu).Float64("load", load).Msg("scaled up")
		s.publish(domain.Event{
			Type:      domain.EventWorkerScaledUp,
			WorkerID:  w.ID,
			Timestamp: now,
		})
		return "scale_up"
	}

	if cpu < s.cfg.ScaleDownCPU && latency < s.cfg.ScaleDownLatencyMs && load < s.cfg.ScaleDownLoad &&
		s.pool.size() > s.cfg.MinWorkers {
		victim := pick(StrategyLeastLoaded, active)
		if victim == nil {
			return ""
		}
		// Reassign everything before removal; assignments are never dropped.
		victim.Status = domain.WorkerScaling
		s.reassignLocked(victim)
		s.pool.removeWorker(victim.ID)
		s.lastScaleAction = now
		s.log.Info().Str("worker", victim.ID).Msg("scaled down")
		s.publish(domain.Event{
			Type:      domain.EventWorkerScaledDown,
			WorkerID:  victim.ID,
			Timestamp: now,
		})
		return "scale_down"
	}

	return ""
}

// Rebalance clears every assignment and redistributes all tickers under
// the current strategy. Used after configuration changes.
func (s *Scaler) Rebalance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tickers []string
	for _, w := range s.pool.workers {
		tickers = append(tickers, s.pool.unassignAll(w)...)
	}
	for _, t := range tickers {
		w, err := s.selectWorkerLocked()
		if err != nil {
			return fmt.Errorf("rebalance: %w", err)
		}
		s.pool.assign(t, w)
	}
	return nil
}

// Status returns a deep-copied snapshot of the pool.
func (s *Scaler) Status() domain.PoolStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := domain.PoolStatus{
		TotalAssigned: s.pool.totalAssigned(),
		GeneratedAt:   s.clk.NowMilli(),
	}
	for _, w := range s.pool.workers {
		out.Workers = append(out.Workers, w.Clone())
		switch w.Status {
		case domain.WorkerActive:
			out.Active++
		case domain.WorkerFailed:
			out.Failed++
		}
	}
	sort.Slice(out.Workers, func(i, j int) bool { return out.Workers[i].ID < out.Workers[j].ID })
	return out
}

// selectWorkerLocked picks an assignment target, scaling up when every
// active worker is at capacity and the pool is below max.
func (s *Scaler) selectWorkerLocked() (*domain.WorkerNode, error) {
	active := s.pool.active()
	if len(active) == 0 {
		return nil, ErrNoWorkers
	}

	if spare := spareCapacity(active); len(spare) > 0 {
		return pick(s.cfg.Strategy, spare), nil
	}

	if s.pool.size() < s.cfg.MaxWorkers {
		w := s.pool.addWorker(s.clk.NowMilli())
		s.log.Info().Str("worker", w.ID).Msg("scaled up on assignment pressure")
		s.publish(domain.Event{
			Type:      domain.EventWorkerScaledUp,
			WorkerID:  w.ID,
			Timestamp: s.clk.NowMilli(),
		})
		return w, nil
	}

	// Pool at max and saturated: force-assign the least-loaded worker.
	return pick(StrategyLeastLoaded, active), nil
}

// reassignLocked moves every ticker off w onto surviving workers. When no
// survivor exists the tickers stay on w so coverage is never lost; they
// move on the next assignment or failure check once the pool recovers.
func (s *Scaler) reassignLocked(w *domain.WorkerNode) {
	if len(w.AssignedTickers) == 0 {
		return
	}
	survivors := s.pool.active()
	if len(survivors) == 0 {
		return
	}

	for _, t := range s.pool.unassignAll(w) {
		target := pick(s.cfg.Strategy, spareCapacityOrAll(survivors))
		s.pool.assign(t, target)
	}
}

// spareCapacityOrAll prefers workers with spare capacity but falls back to
// the full candidate list so reassignment always finds a target.
func spareCapacityOrAll(candidates []*domain.WorkerNode) []*domain.WorkerNode {
	if spare := spareCapacity(candidates); len(spare) > 0 {
		return spare
	}
	return candidates
}

func (s *Scaler) publish(e domain.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
