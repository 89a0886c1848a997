// Package main runs the multi-ticker signal orchestrator: feed intake,
// ticker state machine, priority dispatch, worker scaling, risk enforcement
// and tiered persistence behind one process with /metrics and /healthz.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ticker-orchestrator/internal/clock"
	"ticker-orchestrator/internal/config"
	"ticker-orchestrator/internal/events"
	"ticker-orchestrator/internal/feed"
	"ticker-orchestrator/internal/logger"
	"ticker-orchestrator/internal/observability"
	"ticker-orchestrator/internal/orchestrator"
	"ticker-orchestrator/internal/persistence"
	"ticker-orchestrator/internal/priority"
	"ticker-orchestrator/internal/risk"
	"ticker-orchestrator/internal/scaler"
	chstore "ticker-orchestrator/internal/storage/clickhouse"
	"ticker-orchestrator/internal/storage/memory"
	"ticker-orchestrator/internal/storage/migrations"
	pgstore "ticker-orchestrator/internal/storage/postgres"
	"ticker-orchestrator/internal/ticker"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.Storage.Backend = "memory"
	}

	log := logger.New(cfg.Log)
	log.Info().
		Str("orchestrator_id", cfg.OrchestratorID).
		Str("backend", cfg.Storage.Backend).
		Strs("tickers", cfg.Feed.Tickers).
		Msg("starting orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stores")
	}
	defer cleanup()

	pm, err := persistence.NewManager(cfg.Persistence, stores, clock.Real{}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create persistence manager")
	}

	bus := events.NewBus()
	clk := clock.Real{}
	metrics := observability.NewMetrics("ticker_orchestrator")

	deps := orchestrator.Deps{
		Tickers:     ticker.NewManager(cfg.OrchestratorID, cfg.Ticker, clk, bus, log),
		Scheduler:   priority.NewManager(cfg.Priority, clk, log),
		Pool:        scaler.New(cfg.Scaler, clk, bus, log),
		Risk:        risk.NewManager(cfg.Risk, clk, bus, log),
		Persistence: pm,
		Bus:         bus,
		Metrics:     metrics,
		Clock:       clk,
	}

	if cfg.Feed.Endpoint != "" {
		source, err := feed.NewWSSource(ctx, cfg.Feed.Endpoint, cfg.Feed.Tickers, nil, log)
		if err != nil {
			log.Fatal().Err(err).Str("endpoint", cfg.Feed.Endpoint).Msg("failed to connect feed")
		}
		deps.Source = source
	} else {
		log.Warn().Msg("no feed endpoint configured, running without intake")
	}

	orch, err := orchestrator.New(cfg, deps, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create orchestrator")
	}

	httpSrv := startHTTPServer(cfg.Server.Port, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		// A second signal forces immediate exit.
		sig = <-sigCh
		log.Error().Str("signal", sig.String()).Msg("forced shutdown")
		os.Exit(1)
	}()

	runErr := orch.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatal().Err(runErr).Msg("orchestrator exited with error")
	}
	log.Info().Msg("shutdown complete")
}

// createStores builds the tiered store bundle: postgres for the critical
// tier, clickhouse for analytics, or all-memory with -use-memory.
func createStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (persistence.Stores, func(), error) {
	if cfg.Storage.Backend == "memory" {
		tickers := memory.NewTickerStateStore()
		return persistence.Stores{
			State:       memory.NewOrchestratorStateStore(tickers),
			Tickers:     tickers,
			Checkpoints: memory.NewCheckpointStore(),
			Transitions: memory.NewTransitionStore(),
			Signals:     memory.NewSignalStore(),
			Analytics:   memory.NewAnalyticsStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return persistence.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return persistence.Stores{}, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := persistence.Stores{
		State:       pgstore.NewOrchestratorStateStore(pool),
		Tickers:     pgstore.NewTickerStateStore(pool),
		Checkpoints: pgstore.NewCheckpointStore(pool),
	}

	// The analytics tier is optional: without a ClickHouse DSN the
	// orchestrator runs critical-only.
	if cfg.Storage.ClickhouseDSN == "" {
		log.Warn().Msg("no clickhouse dsn, analytics tier disabled")
		return stores, pool.Close, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return persistence.Stores{}, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	stores.Transitions = chstore.NewTransitionStore(conn)
	stores.Signals = chstore.NewSignalStore(conn)
	stores.Analytics = chstore.NewAnalyticsStore(conn)

	cleanup := func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("clickhouse close")
		}
		pool.Close()
	}
	return stores, cleanup, nil
}

// startHTTPServer serves /metrics and /healthz. Shut down by main after the
// orchestrator stops.
func startHTTPServer(port int, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
		}
	}()
	return srv
}
