package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.temporal.io/sdk/client"
	temporalworker "go.temporal.io/sdk/worker"

	"example.com/salesreport-sync/internal/config"
	"example.com/salesreport-sync/internal/logging"
	"example.com/salesreport-sync/internal/reportsync"
	"example.com/salesreport-sync/internal/sqliteutil"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New()
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	var (
		dbPath   = flag.String("db", cfg.DBPath, "path to the tenant registry sqlite database file")
		addr     = flag.String("addr", cfg.HTTPAddr, "HTTP listen address for the worker API")
		hostPort = flag.String("temporal", cfg.TemporalHostPort, "Temporal frontend host:port")
		autosync = flag.Duration("autosync", cfg.AutosyncInterval, "interval between scheduled report runs for every tenant (0 disables)")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqliteutil.Open(*dbPath)
	if err != nil {
		logger.Error("open tenant db failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := reportsync.NewStore(db)
	if err := store.Init(ctx); err != nil {
		logger.Error("init tenant schema failed", "error", err)
		os.Exit(1)
	}
	if err := seedTenants(ctx, cfg, store, logger); err != nil {
		logger.Error("seed tenants failed", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := reportsync.NewMetrics(registry)

	temporalClient, err := client.Dial(client.Options{
		HostPort:  *hostPort,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.Temporal(logger),
	})
	if err != nil {
		logger.Error("connect temporal failed", "hostport", *hostPort, "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	activities := reportsync.NewReportActivities(
		store,
		reportsync.NewSPAPIFactory(logger),
		reportsync.NewNetSuiteFactory(logger),
		metrics,
		logger.With("component", "report.activities"),
	)
	reportWorker := reportsync.RegisterReportWorker(temporalClient, activities)
	if err := reportWorker.Start(); err != nil {
		logger.Error("start temporal worker failed", "error", err)
		os.Exit(1)
	}

	serverLogger := logger.With("component", "worker.http")
	api := reportsync.NewServer(store, reportsync.NewTemporalOrchestrator(temporalClient, logger), registry, serverLogger)
	api.OnTenantChange(activities.ForgetTenant)
	if *autosync > 0 {
		api.StartAutoSync(ctx, *autosync)
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		serverLogger.Info("worker API listening", "addr", *addr, "db", *dbPath, "temporal", *hostPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLogger.Error("worker server error", "error", err)
			cancel()
		}
	}()

	waitForShutdown(ctx, serverLogger, server, reportWorker)
}

// seedTenants upserts every tenant configured through the environment.
func seedTenants(ctx context.Context, cfg config.Process, store *reportsync.Store, logger *slog.Logger) error {
	tenants, err := cfg.LoadTenants()
	if err != nil {
		return err
	}
	for _, tenant := range tenants {
		if err := store.UpsertTenant(ctx, tenant); err != nil {
			return err
		}
		logger.Info("tenant seeded from environment", "tenant", tenant.ID, "region", tenant.SPAPI.Region)
	}
	return nil
}

func waitForShutdown(ctx context.Context, logger *slog.Logger, server *http.Server, w temporalworker.Worker) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	w.Stop()
	logger.Info("worker stopped")
}
