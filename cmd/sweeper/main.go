// Command sweeper runs the SLA breach sweep on an interval. It is the
// scheduler-facing counterpart of the server's on-demand sweep endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"fingov/internal/audit"
	"fingov/internal/platform/config"
	"fingov/internal/platform/database"
	"fingov/internal/platform/logger"
	slaservice "fingov/internal/sla/service"
	slastore "fingov/internal/sla/store"
	wfservice "fingov/internal/workflow/service"
	wfstore "fingov/internal/workflow/store"
	txctx "fingov/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required for the sweeper")
		os.Exit(1)
	}

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

	workflowStore := wfstore.NewPostgres(pool.DB())
	slaStore := slastore.NewPostgres(pool.DB())
	runner := txctx.NewSQLRunner(pool.DB())

	workflow := wfservice.New(workflowStore, ledger, log)
	sla := slaservice.New(slaStore, slaStore, workflow, ledger, runner, log,
		slaservice.WithWorkers(cfg.SLASweepWorkers))

	log.Info("starting sla sweeper",
		"interval", cfg.SLASweepInterval,
		"workers", cfg.SLASweepWorkers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := time.NewTicker(cfg.SLASweepInterval)
	defer ticker.Stop()

	for {
		report, err := sla.ProcessBreaches(ctx)
		if err != nil {
			log.Error("sweep failed", "error", err)
		} else if report.Candidates > 0 {
			log.Info("sweep pass",
				"candidates", report.Candidates,
				"breached", report.Breached,
				"skipped", report.Skipped,
				"failed", report.Failed,
			)
		}

		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}
