package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/api"
	"github.com/adpilot/budgetd/internal/bandit"
	"github.com/adpilot/budgetd/internal/config"
	"github.com/adpilot/budgetd/internal/db"
	"github.com/adpilot/budgetd/internal/engine"
	"github.com/adpilot/budgetd/internal/history"
	"github.com/adpilot/budgetd/internal/middleware"
	"github.com/adpilot/budgetd/internal/observability"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, 25, 5, 30*time.Minute)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	hist, err := history.InitClickHouse(cfg.ClickHouseDSN, logger)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer hist.Close()

	// Beliefs live in Redis so selection survives restarts and is shared
	// across replicas.
	beliefs := bandit.NewRedisStore(store.Client, logger)

	// Bandit policy is per tenant and travels with each Select/decay call;
	// the selector itself only owns the store and the sampler.
	selector := bandit.NewSelector(beliefs, cfg.BanditSeed, logger)

	winners := engine.NewMemoryWinnerSink(cfg.WinnerBuffer)
	eng := engine.New(selector, metricsRegistry, logger, winners)

	srvDeps := api.NewServer(logger, eng, pg, store, hist, winners, metricsRegistry, cfg)
	if err := srvDeps.Reload(); err != nil {
		return fmt.Errorf("initial tenant load: %w", err)
	}

	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(logger))
	r.HandleFunc("/evaluate", srvDeps.EvaluateHandler).Methods("POST")
	r.HandleFunc("/cycle", srvDeps.CycleHandler).Methods("POST")
	r.HandleFunc("/winners", srvDeps.WinnersHandler).Methods("GET")
	r.HandleFunc("/health", srvDeps.HealthHandler).Methods("GET")
	r.HandleFunc("/reload", srvDeps.ReloadHandler).Methods("POST")
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "budgetd"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Decision server running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
					// Each tenant's decay policy applies only to its own
					// belief scope.
					for _, t := range srvDeps.Tenants() {
						if err := selector.ApplyTimeDecay(ctx, t.Bandit, t.Name+"/"); err != nil {
							logger.Error("belief decay", zap.String("tenant", t.Name), zap.Error(err))
						}
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
