// Package orchestrator composes the ticker state machine, the priority
// scheduler, the worker pool, risk enforcement and tiered persistence into
// one running system. Run owns every background loop; nothing here spawns
// goroutines that outlive it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/config"
	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/events"
	"ticker-orchestrator/internal/idhash"
	"ticker-orchestrator/internal/observability"
	"ticker-orchestrator/internal/persistence"
	"ticker-orchestrator/internal/priority"
	"ticker-orchestrator/internal/risk"
	"ticker-orchestrator/internal/scaler"
	"ticker-orchestrator/internal/ticker"
)

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("missing orchestrator dependency")

// Source delivers inbound market updates. Closed by the orchestrator on
// shutdown.
type Source interface {
	Updates() <-chan domain.MarketUpdate
	Close() error
}

// Executor runs one dispatched task on an assigned worker. The scheduler's
// resources are released by the orchestrator after Execute returns,
// regardless of outcome.
type Executor interface {
	Execute(ctx context.Context, task *domain.Task, workerID string) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *domain.Task, workerID string) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *domain.Task, workerID string) error {
	return f(ctx, task, workerID)
}

// Deps bundles the orchestrator's collaborators. Tickers, Scheduler, Pool,
// Risk and Persistence are required; Source, Executor, Bus and Metrics are
// optional.
type Deps struct {
	Tickers     *ticker.Manager
	Scheduler   *priority.Manager
	Pool        *scaler.Scaler
	Risk        *risk.Manager
	Persistence *persistence.Manager

	Source   Source
	Executor Executor
	Bus      *events.Bus
	Metrics  *observability.Metrics
	Clock    clock.Clock
}

// Orchestrator is the composition root. One instance per orchestrator id.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
	clk  clock.Clock
	log  zerolog.Logger

	mu             sync.Mutex
	accountBalance decimal.Decimal
	signalSeq      int64
	pendingSignals []*domain.SignalRecord

	wg sync.WaitGroup
}

// New creates an orchestrator and wires metrics onto the event bus.
func New(cfg *config.Config, deps Deps, log zerolog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config", ErrMissingDependency)
	}
	if deps.Tickers == nil || deps.Scheduler == nil || deps.Pool == nil ||
		deps.Risk == nil || deps.Persistence == nil {
		return nil, ErrMissingDependency
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Executor == nil {
		deps.Executor = ExecutorFunc(func(context.Context, *domain.Task, string) error { return nil })
	}

	o := &Orchestrator{
		cfg:  cfg,
		deps: deps,
		clk:  deps.Clock,
		log:  log.With().Str("component", "orchestrator").Logger(),
	}
	if deps.Bus != nil && deps.Metrics != nil {
		deps.Bus.Subscribe(o.observeEvent)
	}
	return o, nil
}

// SetAccountBalance records the latest account balance used for trade
// admission. Zero rejects every trade.
func (o *Orchestrator) SetAccountBalance(balance decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accountBalance = balance
}

// WorkerHeartbeat forwards a worker health sample to the pool.
func (o *Orchestrator) WorkerHeartbeat(workerID string, metrics domain.WorkerMetrics) error {
	return o.deps.Pool.Heartbeat(workerID, metrics)
}

// EnqueueTask queues external work through the scheduler.
func (o *Orchestrator) EnqueueTask(task *domain.Task) error {
	if err := o.deps.Scheduler.EnqueueTask(task); err != nil {
		if o.deps.Metrics != nil {
			o.deps.Metrics.TasksRejected.Inc()
		}
		return err
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.TasksEnqueued.WithLabelValues(string(task.Type)).Inc()
	}
	return nil
}

// EnforcePortfolioRisk runs one risk enforcement pass and applies the
// resulting actions to ticker state: forced closes push the ticker into
// COOLDOWN with its position cleared, a halt degrades system health.
func (o *Orchestrator) EnforcePortfolioRisk(equity decimal.Decimal, positions []*domain.Position) []domain.RiskAction {
	actions := o.deps.Risk.EnforceRiskLimits(equity, positions)
	for _, a := range actions {
		switch a.Type {
		case domain.ActionHaltTrading:
			o.deps.Tickers.SetHealth("halted")
		case domain.ActionClosePosition:
			if a.Ticker == "" {
				continue
			}
			cooldown := domain.StatusCooldown
			if _, err := o.deps.Tickers.UpdateTicker(a.Ticker, ticker.Update{
				Status:        &cooldown,
				ClearPosition: true,
			}); err != nil {
				o.log.Warn().Err(err).Str("ticker", a.Ticker).Msg("failed to apply forced close")
			}
		}
	}
	o.deps.Tickers.SetPortfolioHeat(risk.Heat(equity, positions))
	if o.deps.Metrics != nil {
		o.deps.Metrics.DrawdownPct.Set(o.deps.Risk.CurrentDrawdown())
	}
	return actions
}

// Run recovers persisted state, starts every loop and blocks until ctx is
// cancelled. Shutdown drains in-flight tasks, flushes analytics buffers and
// writes a SHUTDOWN checkpoint.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.recover(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	if err := o.checkpoint(ctx, domain.CheckpointStartup); err != nil {
		return fmt.Errorf("startup checkpoint: %w", err)
	}

	if o.deps.Source != nil {
		o.wg.Add(1)
		go o.intakeLoop(ctx)
	}
	o.wg.Add(1)
	go o.dispatchLoop(ctx)

	iv := o.cfg.Intervals
	o.every(ctx, iv.Checkpoint, func(c context.Context) {
		if err := o.checkpoint(c, domain.CheckpointPeriodic); err != nil {
			o.log.Error().Err(err).Msg("periodic checkpoint failed")
		}
	})
	o.every(ctx, iv.Retention, func(c context.Context) {
		if err := o.deps.Persistence.RunRetention(c, o.cfg.OrchestratorID); err != nil {
			o.log.Error().Err(err).Msg("retention run failed")
			if o.deps.Metrics != nil {
				o.deps.Metrics.PersistErrors.WithLabelValues("critical").Inc()
			}
		}
	})
	o.every(ctx, iv.ScalingCheck, func(context.Context) {
		o.deps.Pool.EvaluateScaling()
	})
	o.every(ctx, iv.FailureCheck, func(context.Context) {
		if failed := o.deps.Pool.CheckFailures(); len(failed) > 0 && o.deps.Metrics != nil {
			o.deps.Metrics.TickerReassigns.Add(float64(len(failed)))
		}
	})
	o.every(ctx, iv.CooldownSweep, func(context.Context) {
		o.deps.Tickers.ExpireCooldowns()
	})
	o.every(ctx, iv.Rescore, func(context.Context) {
		o.deps.Scheduler.Rescore()
	})
	o.every(ctx, iv.PerformanceSnap, func(c context.Context) {
		o.persistTick(c)
	})

	<-ctx.Done()
	if o.deps.Source != nil {
		if err := o.deps.Source.Close(); err != nil {
			o.log.Debug().Err(err).Msg("feed close")
		}
	}
	o.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.cfg.Server.ShutdownTimeout)
	defer cancel()

	o.persistTick(shutdownCtx)
	if err := o.checkpoint(shutdownCtx, domain.CheckpointShutdown); err != nil {
		o.log.Error().Err(err).Msg("shutdown checkpoint failed")
		return fmt.Errorf("shutdown checkpoint: %w", err)
	}
	o.log.Info().Msg("orchestrator stopped")
	return nil
}

// recover rebuilds state from the latest checkpoint plus live ticker rows
// and seeds the ticker manager.
func (o *Orchestrator) recover(ctx context.Context) error {
	start := time.Now()
	rec, err := o.deps.Persistence.Recover(ctx, o.cfg.OrchestratorID)
	if err != nil {
		return err
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecoveryDuration.Observe(time.Since(start).Seconds())
	}

	if rec.FromColdStart {
		o.log.Info().Msg("cold start, no persisted state")
		return nil
	}

	states := make([]*domain.TickerState, 0, len(rec.Tickers))
	for _, t := range rec.Tickers {
		states = append(states, t)
	}
	o.deps.Tickers.Hydrate(states)
	o.deps.Tickers.SetPortfolioHeat(rec.State.PortfolioHeat)
	if rec.State.TradingHalted {
		// The risk halt latch does not survive restarts; surface it so an
		// operator can decide whether to re-halt.
		o.log.Warn().Msg("recovered state was trading-halted, halt latch not restored")
	}
	o.log.Info().
		Int("tickers", len(states)).
		Bool("from_checkpoint", rec.Checkpoint != nil).
		Msg("state recovered")
	return nil
}

// intakeLoop consumes the feed. One goroutine, so per-ticker arrival order
// is preserved end to end.
func (o *Orchestrator) intakeLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-o.deps.Source.Updates():
			if !ok {
				o.log.Warn().Msg("feed closed")
				return
			}
			o.handleUpdate(upd)
		}
	}
}

// handleUpdate applies one market update to the state machine, records the
// signal for analytics and enqueues a trade task when the ticker reaches GO
// without an open position.
func (o *Orchestrator) handleUpdate(upd domain.MarketUpdate) {
	state, err := o.deps.Tickers.UpdateTicker(upd.Ticker, ticker.Update{
		Confidence: &upd.Confidence,
		Conviction: &upd.Conviction,
	})
	if err != nil {
		o.log.Debug().Err(err).Str("ticker", upd.Ticker).Msg("rejected update")
		if o.deps.Metrics != nil {
			o.deps.Metrics.SignalsRejected.WithLabelValues("validation").Inc()
		}
		return
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.SignalsProcessed.WithLabelValues(upd.Ticker).Inc()
	}

	o.mu.Lock()
	o.signalSeq++
	seq := o.signalSeq
	ts := upd.Timestamp
	if ts == 0 {
		ts = o.clk.NowMilli()
	}
	o.pendingSignals = append(o.pendingSignals, &domain.SignalRecord{
		SignalID:   idhash.ComputeSignalID(o.cfg.OrchestratorID, upd.Ticker, ts, seq),
		Ticker:     upd.Ticker,
		Confidence: upd.Confidence,
		Conviction: upd.Conviction,
		Status:     state.Status,
		Price:      upd.Price,
		Volume:     upd.Volume,
		Timestamp:  ts,
	})
	o.mu.Unlock()

	if state.Status == domain.StatusGo && state.PositionID == nil {
		now := o.clk.NowMilli()
		task := &domain.Task{
			ID:         idhash.ComputeTaskID(upd.Ticker, string(domain.TaskTradeExecution), now, seq),
			Ticker:     upd.Ticker,
			Type:       domain.TaskTradeExecution,
			Urgent:     true,
			Cost:       taskCost(domain.TaskTradeExecution),
			EnqueuedAt: now,
		}
		if err := o.EnqueueTask(task); err != nil {
			o.log.Warn().Err(err).Str("ticker", upd.Ticker).Msg("failed to enqueue trade task")
		}
	}
}

// dispatchLoop pulls admitted tasks and hands them to workers.
func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	defer o.wg.Done()
	t := time.NewTicker(o.cfg.Intervals.Dispatch)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// Drain everything admissible each tick.
			for o.dispatchOne(ctx) {
			}
		}
	}
}

// dispatchOne dequeues and executes at most one task. Returns false when
// the queue is empty or admission is blocked. Resources are released on
// every exit path after dequeue.
func (o *Orchestrator) dispatchOne(ctx context.Context) bool {
	task := o.deps.Scheduler.NextTask()
	if task == nil {
		return false
	}

	if task.Type == domain.TaskTradeExecution {
		decision := o.deps.Risk.ValidateTrade(o.balance())
		if !decision.Approved {
			o.deps.Scheduler.Release(task)
			o.log.Info().Str("ticker", task.Ticker).Str("reason", decision.Reason).Msg("trade rejected")
			if o.deps.Metrics != nil {
				o.deps.Metrics.TradesRejected.WithLabelValues(decision.Reason).Inc()
			}
			return true
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.TradesApproved.Inc()
		}
	}

	workerID, err := o.deps.Pool.AssignTicker(task.Ticker)
	if err != nil {
		o.deps.Scheduler.Release(task)
		o.log.Error().Err(err).Str("ticker", task.Ticker).Msg("no worker for task")
		return true
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.TasksDispatched.WithLabelValues(string(task.Type)).Inc()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.deps.Scheduler.Release(task)

		start := time.Now()
		if err := o.deps.Executor.Execute(ctx, task, workerID); err != nil {
			o.log.Error().Err(err).
				Str("task", task.ID).
				Str("worker", workerID).
				Msg("task execution failed")
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.TaskLatency.Observe(time.Since(start).Seconds())
		}
	}()
	return true
}

// persistTick is one persistence cadence: critical snapshot, buffered
// analytics flush, performance sample and gauge refresh.
func (o *Orchestrator) persistTick(ctx context.Context) {
	snap := o.deps.Tickers.Snapshot()
	state := o.buildState(snap)

	if err := o.deps.Persistence.PersistSnapshot(ctx, state, tickerSlice(snap)); err != nil {
		o.log.Error().Err(err).Msg("failed to persist snapshot")
		if o.deps.Metrics != nil {
			o.deps.Metrics.PersistErrors.WithLabelValues("critical").Inc()
		}
	}

	trs := o.deps.Tickers.DrainTransitions()
	if len(trs) > 0 {
		ptrs := make([]*domain.StateTransition, len(trs))
		for i := range trs {
			ptrs[i] = &trs[i]
		}
		o.deps.Persistence.RecordTransitions(ctx, ptrs)
	}

	o.mu.Lock()
	signals := o.pendingSignals
	o.pendingSignals = nil
	o.mu.Unlock()
	o.deps.Persistence.RecordSignals(ctx, signals)

	o.deps.Persistence.RecordPerformance(ctx, o.performanceSnapshot(snap))
	o.refreshGauges(snap)
}

// checkpoint writes a full-system checkpoint of the given type.
func (o *Orchestrator) checkpoint(ctx context.Context, cpType domain.CheckpointType) error {
	snap := o.deps.Tickers.Snapshot()
	_, err := o.deps.Persistence.CreateCheckpoint(
		ctx,
		cpType,
		o.buildState(snap),
		snap.Tickers,
		nil,
		o.cfg,
		o.performanceSnapshot(snap),
	)
	if err != nil {
		if o.deps.Metrics != nil {
			o.deps.Metrics.PersistErrors.WithLabelValues("critical").Inc()
		}
		return err
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.CheckpointsCreated.WithLabelValues(string(cpType)).Inc()
	}
	return nil
}

func (o *Orchestrator) buildState(snap *domain.MultiTickerState) *domain.OrchestratorState {
	return &domain.OrchestratorState{
		OrchestratorID: o.cfg.OrchestratorID,
		ActiveTickers:  snap.ActiveTickers,
		TotalSignals:   snap.TotalSignals,
		ActiveTrades:   snap.ActiveTrades,
		PortfolioHeat:  snap.PortfolioHeat,
		Health:         snap.Health,
		TradingHalted:  o.deps.Risk.Halted(),
		UpdatedAt:      o.clk.NowMilli(),
	}
}

func (o *Orchestrator) performanceSnapshot(snap *domain.MultiTickerState) *domain.PerformanceSnapshot {
	util := o.deps.Scheduler.Utilization()
	pool := o.deps.Pool.Status()

	var latency float64
	for _, w := range pool.Workers {
		latency += w.Metrics.AverageLatency
	}
	if len(pool.Workers) > 0 {
		latency /= float64(len(pool.Workers))
	}

	return &domain.PerformanceSnapshot{
		OrchestratorID:   o.cfg.OrchestratorID,
		TickersTracked:   snap.ActiveTickers,
		SignalsProcessed: snap.TotalSignals,
		QueueDepth:       util.QueueDepth,
		ActiveWorkers:    pool.Active,
		FailedWorkers:    pool.Failed,
		TasksInFlight:    util.Usage.ActiveTasks,
		AvgLatencyMs:     latency,
		Timestamp:        o.clk.NowMilli(),
	}
}

// refreshGauges pushes the current snapshot into the point-in-time gauges.
func (o *Orchestrator) refreshGauges(snap *domain.MultiTickerState) {
	m := o.deps.Metrics
	if m == nil {
		return
	}

	stats := o.deps.Tickers.Stats()
	m.TickersTracked.Set(float64(stats.TotalTickers))
	m.TickersInCooldown.Set(float64(stats.InCooldown))
	m.PortfolioHeat.Set(snap.PortfolioHeat)

	util := o.deps.Scheduler.Utilization()
	m.QueueDepth.Set(float64(util.QueueDepth))
	m.ResourceMemoryMB.Set(util.Usage.MemoryMB)
	m.ResourceTasks.Set(float64(util.Usage.ActiveTasks))

	pool := o.deps.Pool.Status()
	m.ActiveWorkers.Set(float64(pool.Active))
	m.FailedWorkers.Set(float64(pool.Failed))
	for _, w := range pool.Workers {
		m.WorkerLoad.WithLabelValues(w.ID).Set(w.CurrentLoad)
	}

	m.DrawdownPct.Set(o.deps.Risk.CurrentDrawdown())
	if o.deps.Risk.Halted() {
		m.TradingHalted.Set(1)
	} else {
		m.TradingHalted.Set(0)
	}
}

// observeEvent maps bus events onto counters.
func (o *Orchestrator) observeEvent(e domain.Event) {
	m := o.deps.Metrics
	switch e.Type {
	case domain.EventStateTransition:
		if tr, ok := e.Payload.(domain.StateTransition); ok {
			m.StateTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
		}
	case domain.EventWorkerScaledUp:
		m.ScaleEvents.WithLabelValues("up").Inc()
	case domain.EventWorkerScaledDown:
		m.ScaleEvents.WithLabelValues("down").Inc()
	case domain.EventTradingHalted:
		m.TradingHalted.Set(1)
	}
}

// every runs fn on a fixed cadence until ctx is cancelled. A non-positive
// interval disables the loop.
func (o *Orchestrator) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn(ctx)
			}
		}
	}()
}

func (o *Orchestrator) balance() decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.accountBalance
}

func tickerSlice(snap *domain.MultiTickerState) []*domain.TickerState {
	out := make([]*domain.TickerState, 0, len(snap.Tickers))
	for _, t := range snap.Tickers {
		out = append(out, t)
	}
	return out
}

// taskCost is the declared footprint per task class. Trade execution is the
// heaviest: it makes broker calls and holds working memory for the fill.
func taskCost(t domain.TaskType) domain.ResourceCost {
	switch t {
	case domain.TaskTradeExecution:
		return domain.ResourceCost{MemoryMB: 64, CPU: 0.5, NetworkCalls: 4}
	case domain.TaskRiskCheck:
		return domain.ResourceCost{MemoryMB: 32, CPU: 0.25, NetworkCalls: 1}
	case domain.TaskAnalytics:
		return domain.ResourceCost{MemoryMB: 128, CPU: 0.25, NetworkCalls: 0}
	default:
		return domain.ResourceCost{MemoryMB: 16, CPU: 0.1, NetworkCalls: 1}
	}
}
