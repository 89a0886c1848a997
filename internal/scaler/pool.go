// Package scaler owns the worker pool: ticker→worker assignment, scale
// up/down from observed metrics, and heartbeat-based failure detection.
package scaler

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"ticker-orchestrator/internal/domain"
)

// pool is the worker arena plus the ticker→worker assignment index.
// Not goroutine-safe; the Scaler serializes access.
type pool struct {
	workers    map[string]*domain.WorkerNode
	assignment map[string]string // ticker → worker id
	capacity   int               // maxCapacity per worker
}

func newPool(capacity int) *pool {
	return &pool{
		workers:    make(map[string]*domain.WorkerNode),
		assignment: make(map[string]string),
		capacity:   capacity,
	}
}

// addWorker creates a new active worker and returns it.
func (p *pool) addWorker(now int64) *domain.WorkerNode {
	w := &domain.WorkerNode{
		ID:              "w-" + strings.Split(uuid.NewString(), "-")[0],
		Status:          domain.WorkerActive,
		AssignedTickers: make(map[string]struct{}),
		MaxCapacity:     p.capacity,
		LastHeartbeat:   now,
	}
	p.workers[w.ID] = w
	return w
}

// removeWorker deletes a worker from the arena. The caller must have
// reassigned its tickers first.
func (p *pool) removeWorker(id string) {
	delete(p.workers, id)
}

// assign binds a ticker to a worker and refreshes the worker's load.
func (p *pool) assign(ticker string, w *domain.WorkerNode) {
	if prev, ok := p.assignment[ticker]; ok {
		if pw, ok := p.workers[prev]; ok {
			delete(pw.AssignedTickers, ticker)
			refreshLoad(pw)
		}
	}
	w.AssignedTickers[ticker] = struct{}{}
	p.assignment[ticker] = w.ID
	refreshLoad(w)
}

// unassignAll removes every ticker from a worker and returns them.
func (p *pool) unassignAll(w *domain.WorkerNode) []string {
	tickers := make([]string, 0, len(w.AssignedTickers))
	for t := range w.AssignedTickers {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers) // deterministic reassignment order
	for _, t := range tickers {
		delete(w.AssignedTickers, t)
		delete(p.assignment, t)
	}
	refreshLoad(w)
	return tickers
}

// active returns non-failed workers sorted by id for deterministic
// strategy iteration.
func (p *pool) active() []*domain.WorkerNode {
	out := make([]*domain.WorkerNode, 0, len(p.workers))
	for _, w := range p.workers {
		if w.Status == domain.WorkerActive {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *pool) size() int {
	return len(p.workers)
}

// totalAssigned counts ticker assignments across the whole pool.
func (p *pool) totalAssigned() int {
	return len(p.assignment)
}

// refreshLoad recomputes a worker's load from its assignment count.
// Force-assignment can push a worker past capacity; load clamps at 1.
func refreshLoad(w *domain.WorkerNode) {
	if w.MaxCapacity <= 0 {
		w.CurrentLoad = 0
		return
	}
	load := float64(len(w.AssignedTickers)) / float64(w.MaxCapacity)
	if load > 1 {
		load = 1
	}
	w.CurrentLoad = load
}
