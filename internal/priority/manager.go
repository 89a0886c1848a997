package priority

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/domain"
)

var (
	// ErrQueueFull is returned when the pending queue is at capacity.
	ErrQueueFull = errors.New("priority queue full")
	// ErrInvalidTask is returned for tasks missing an id or type.
	ErrInvalidTask = errors.New("invalid task")
)

// Config holds queue bounds and resource ceilings.
type Config struct {
	MaxQueueSize int                `yaml:"max_queue_size" validate:"gt=0"`
	Limits       ResourceLimits     `yaml:"limits"`
	Weights      map[string]float64 `yaml:"ticker_weights"`
}

// DefaultConfig returns the bounds used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize: 10_000,
		Limits: ResourceLimits{
			MaxActiveTasks:  64,
			MaxMemoryMB:     4096,
			MaxCPU:          8,
			MaxNetworkCalls: 256,
		},
	}
}

// Manager owns the pending-task queue and resource admission state.
type Manager struct {
	mu      sync.Mutex
	queue   *queue
	tracker *tracker
	scorer  *Scorer
	clk     clock.Clock
	log     zerolog.Logger
}

// NewManager creates a priority manager.
func NewManager(cfg Config, clk clock.Clock, log zerolog.Logger) *Manager {
	return &Manager{
		queue:   newQueue(cfg.MaxQueueSize),
		tracker: newTracker(cfg.Limits),
		scorer:  NewScorer(cfg.Weights),
		clk:     clk,
		log:     log.With().Str("component", "priority_manager").Logger(),
	}
}

// Scorer exposes the ticker scorer for ranking outside the queue.
func (m *Manager) Scorer() *Scorer {
	return m.scorer
}

// EnqueueTask scores and queues a task. Returns ErrQueueFull when the
// queue is at capacity.
func (m *Manager) EnqueueTask(task *domain.Task) error {
	if task == nil || task.ID == "" || task.Type == "" {
		return ErrInvalidTask
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if task.EnqueuedAt == 0 {
		task.EnqueuedAt = m.clk.NowMilli()
	}
	score := m.scorer.TaskScore(task, m.clk.NowMilli())
	if !m.queue.push(task, score) {
		return ErrQueueFull
	}
	return nil
}

// NextTask dequeues the highest-priority task if global resource usage
// stays under every ceiling after admission. Returns nil when the queue is
// empty or admission fails; a rejected task stays queued at its position.
// The caller owns the returned task's resources and must Release them on
// every exit path.
func (m *Manager) NextTask() *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	top := m.queue.peek()
	if top == nil {
		return nil
	}
	if !m.tracker.admit(top.task.Cost) {
		return nil
	}
	return m.queue.pop().task
}

// Release returns a completed task's resources. Callers must call this on
// success, failure and abort alike; a missed release is a permanent leak.
func (m *Manager) Release(task *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracker.release(task.Cost)
}

// Rescore refreshes task scores (age bonus) in place, preserving arrival
// order for equal scores. Run periodically so queued tasks age against
// fresh arrivals.
func (m *Manager) Rescore() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.NowMilli()
	m.queue.rescore(func(t *domain.Task) float64 {
		return m.scorer.TaskScore(t, now)
	})
}

// PrioritizeTickers ranks ticker states by descending priority score.
func (m *Manager) PrioritizeTickers(states []*domain.TickerState) []TickerPriority {
	return m.scorer.PrioritizeTickers(states, m.clk.NowMilli())
}

// Utilization is a snapshot of queue depth and resource consumption.
type Utilization struct {
	QueueDepth int
	Usage      ResourceUsage
	Limits     ResourceLimits
}

// Utilization returns current queue and resource statistics.
func (m *Manager) Utilization() Utilization {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Utilization{
		QueueDepth: m.queue.len(),
		Usage:      m.tracker.usage,
		Limits:     m.tracker.limits,
	}
}
