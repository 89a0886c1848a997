package orchestrator

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/config"
	"ticker-orchestrator/internal/domain"
	"ticker-orchestrator/internal/events"
	"ticker-orchestrator/internal/persistence"
	"ticker-orchestrator/internal/priority"
	"ticker-orchestrator/internal/risk"
	"ticker-orchestrator/internal/scaler"
	"ticker-orchestrator/internal/storage/memory"
	"ticker-orchestrator/internal/ticker"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type harness struct {
	orch        *Orchestrator
	clk         *clock.Fake
	tickers     *ticker.Manager
	sched       *priority.Manager
	pool        *scaler.Scaler
	risk        *risk.Manager
	checkpoints *memory.CheckpointStore
	tickerStore *memory.TickerStateStore
	signals     *memory.SignalStore
}

type recordingExecutor struct {
	mu    sync.Mutex
	tasks []*domain.Task
}

func (e *recordingExecutor) Execute(_ context.Context, task *domain.Task, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return nil
}

func (e *recordingExecutor) executed() []*domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*domain.Task(nil), e.tasks...)
}

func newHarness(t *testing.T, exec Executor) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.OrchestratorID = "orch-test"
	cfg.Server.ShutdownTimeout = 5 * time.Second

	clk := clock.NewFake(1704067200000)
	log := testLogger()
	bus := events.NewBus()

	tickerStore := memory.NewTickerStateStore()
	checkpoints := memory.NewCheckpointStore()
	signals := memory.NewSignalStore()
	pm, err := persistence.NewManager(persistence.DefaultConfig(), persistence.Stores{
		State:       memory.NewOrchestratorStateStore(tickerStore),
		Tickers:     tickerStore,
		Checkpoints: checkpoints,
		Transitions: memory.NewTransitionStore(),
		Signals:     signals,
		Analytics:   memory.NewAnalyticsStore(),
	}, clk, log)
	require.NoError(t, err)

	tm := ticker.NewManager(cfg.OrchestratorID, cfg.Ticker, clk, bus, log)
	sched := priority.NewManager(cfg.Priority, clk, log)
	pool := scaler.New(cfg.Scaler, clk, bus, log)
	rm := risk.NewManager(cfg.Risk, clk, bus, log)

	orch, err := New(cfg, Deps{
		Tickers:     tm,
		Scheduler:   sched,
		Pool:        pool,
		Risk:        rm,
		Persistence: pm,
		Executor:    exec,
		Bus:         bus,
		Clock:       clk,
	}, log)
	require.NoError(t, err)

	return &harness{
		orch:        orch,
		clk:         clk,
		tickers:     tm,
		sched:       sched,
		pool:        pool,
		risk:        rm,
		checkpoints: checkpoints,
		tickerStore: tickerStore,
		signals:     signals,
	}
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	_, err := New(config.Default(), Deps{}, testLogger())
	assert.ErrorIs(t, err, ErrMissingDependency)

	_, err = New(nil, Deps{}, testLogger())
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestHandleUpdate_GoEnqueuesTradeTask(t *testing.T) {
	h := newHarness(t, nil)

	// Below thresholds: no task.
	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 0.3, Conviction: 0.3})
	assert.Nil(t, h.sched.NextTask())

	// READY → SET, still no trade task.
	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 0.7, Conviction: 0.7})
	assert.Nil(t, h.sched.NextTask())

	// SET → GO enqueues exactly one trade execution task.
	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 0.9, Conviction: 0.9})
	task := h.sched.NextTask()
	require.NotNil(t, task)
	assert.Equal(t, domain.TaskTradeExecution, task.Type)
	assert.Equal(t, "SPY", task.Ticker)
	assert.True(t, task.Urgent)
	h.sched.Release(task)
}

func TestHandleUpdate_RejectedUpdateBuffersNothing(t *testing.T) {
	h := newHarness(t, nil)

	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 1.5, Conviction: 0.5})

	h.orch.mu.Lock()
	defer h.orch.mu.Unlock()
	assert.Empty(t, h.orch.pendingSignals)
}

func TestDispatchOne_RiskGateBlocksTrade(t *testing.T) {
	exec := &recordingExecutor{}
	h := newHarness(t, exec)

	// Balance below the configured minimum: the trade is consumed and
	// rejected, not executed.
	h.orch.SetAccountBalance(decimal.NewFromInt(100))
	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 0.95, Conviction: 0.95})
	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 0.95, Conviction: 0.95})

	assert.True(t, h.orch.dispatchOne(context.Background()))
	assert.False(t, h.orch.dispatchOne(context.Background()))
	assert.Empty(t, exec.executed())
}

func TestDispatchOne_ApprovedTradeExecutes(t *testing.T) {
	exec := &recordingExecutor{}
	h := newHarness(t, exec)

	h.orch.SetAccountBalance(decimal.NewFromInt(50_000))
	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 0.95, Conviction: 0.95})
	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 0.95, Conviction: 0.95})

	require.True(t, h.orch.dispatchOne(context.Background()))
	h.orch.wg.Wait()

	executed := exec.executed()
	require.Len(t, executed, 1)
	assert.Equal(t, domain.TaskTradeExecution, executed[0].Type)
	assert.NotEmpty(t, h.pool.AssignedWorker("SPY"))

	// Resources were released after execution.
	util := h.sched.Utilization()
	assert.Zero(t, util.Usage.ActiveTasks)
}

func TestEnforcePortfolioRisk_ForcedCloseCoolsTicker(t *testing.T) {
	h := newHarness(t, nil)

	pos := "pos-1"
	_, err := h.tickers.UpdateTicker("SPY", ticker.Update{PositionID: &pos})
	require.NoError(t, err)

	// Equity collapse past max drawdown halts and force-closes.
	h.orch.EnforcePortfolioRisk(decimal.NewFromInt(100_000), nil)
	actions := h.orch.EnforcePortfolioRisk(decimal.NewFromInt(80_000), []*domain.Position{
		{PositionID: pos, Ticker: "SPY", PnL: decimal.NewFromInt(-20_000)},
	})

	require.Len(t, actions, 2)
	assert.Equal(t, domain.ActionHaltTrading, actions[0].Type)
	assert.Equal(t, domain.ActionClosePosition, actions[1].Type)

	state := h.tickers.Get("SPY")
	require.NotNil(t, state)
	assert.Equal(t, domain.StatusCooldown, state.Status)
	assert.Nil(t, state.PositionID)
	assert.True(t, h.risk.Halted())
}

func TestRun_StartupAndShutdownCheckpoints(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	// Startup checkpoint lands before the first periodic tick.
	require.Eventually(t, func() bool {
		cp, err := h.checkpoints.Latest(context.Background(), "orch-test")
		return err == nil && cp.Type == domain.CheckpointStartup
	}, 2*time.Second, 10*time.Millisecond)

	// Advance the clock so the shutdown checkpoint is strictly newer.
	h.clk.Advance(time.Second)
	cancel()
	require.NoError(t, <-done)

	cp, err := h.checkpoints.Latest(context.Background(), "orch-test")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckpointShutdown, cp.Type)
}

func TestRun_RecoversPersistedTickers(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.tickerStore.Upsert(context.Background(), "orch-test", &domain.TickerState{
		Ticker:     "NVDA",
		Status:     domain.StatusSet,
		Confidence: 0.7,
		Conviction: 0.7,
		LastUpdate: h.clk.NowMilli(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	require.Eventually(t, func() bool {
		s := h.tickers.Get("NVDA")
		return s != nil && s.Status == domain.StatusSet
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPersistTick_FlushesSignals(t *testing.T) {
	h := newHarness(t, nil)

	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "SPY", Confidence: 0.5, Conviction: 0.5, Timestamp: h.clk.NowMilli()})
	h.orch.handleUpdate(domain.MarketUpdate{Ticker: "QQQ", Confidence: 0.4, Conviction: 0.4, Timestamp: h.clk.NowMilli()})

	h.orch.persistTick(context.Background())

	got, err := h.signals.GetByTicker(context.Background(), "SPY", 0, h.clk.NowMilli()+1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Buffer is drained; a second tick writes nothing new.
	h.orch.persistTick(context.Background())
	got, err = h.signals.GetByTicker(context.Background(), "SPY", 0, h.clk.NowMilli()+1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
