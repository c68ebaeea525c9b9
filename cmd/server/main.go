// Command server wires the governance engine behind its HTTP surface. Business
// logic lives in the internal services; main only assembles and supervises.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"fingov/internal/audit"
	"fingov/internal/governance"
	govmetrics "fingov/internal/governance/metrics"
	"fingov/internal/platform/config"
	"fingov/internal/platform/database"
	"fingov/internal/platform/health"
	"fingov/internal/platform/logger"
	"fingov/internal/rules"
	"fingov/internal/seeder"
	slaservice "fingov/internal/sla/service"
	slastore "fingov/internal/sla/store"
	httptransport "fingov/internal/transport/http"
	wfservice "fingov/internal/workflow/service"
	wfstore "fingov/internal/workflow/store"
	txctx "fingov/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing fingov",
		"addr", cfg.Addr,
		"audit_log_path", cfg.AuditLogPath,
	)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := audit.NewRegistry()
	ledger, err := registry.Ledger(cfg.AuditLogPath)
	if err != nil {
		log.Error("audit ledger init failed", "error", err)
		os.Exit(1)
	}

	var (
		workflowStore wfstore.Store
		slaStore      slastore.Store
		policyStore   slastore.PolicyStore
		runner        txctx.Runner
		probes        *health.Handler
	)
	if pool != nil {
		workflowStore = wfstore.NewPostgres(pool.DB())
		pgSLA := slastore.NewPostgres(pool.DB())
		slaStore, policyStore = pgSLA, pgSLA
		runner = txctx.NewSQLRunner(pool.DB())

		probes = health.New("postgres")
		probes.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	} else {
		// Store-less mode for local development and smoke tests.
		log.Warn("no DATABASE_URL configured, using in-memory stores")
		workflowStore = wfstore.NewMemory()
		memSLA := slastore.NewMemory()
		slaStore, policyStore = memSLA, memSLA
		runner = txctx.NopRunner{}
		probes = health.New("memory")

		// Without the policy matrix no timer would ever start in dev.
		seeder.New(memSLA, log).SeedPolicies(cfg.DefaultTenant)
	}

	metrics := govmetrics.New()
	engine := rules.New(rules.DefaultConfig())
	workflow := wfservice.New(workflowStore, ledger, log)
	sla := slaservice.New(slaStore, policyStore, workflow, ledger, runner, log,
		slaservice.WithWorkers(cfg.SLASweepWorkers))
	orch := governance.New(engine, workflow, sla, ledger, runner, log,
		governance.WithMetrics(metrics))

	handler := httptransport.NewHandler(orch, workflow, sla, ledger, log)
	router := httptransport.NewRouter(handler, probes, []byte(cfg.JWTSigningKey))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
