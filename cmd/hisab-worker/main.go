package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"hisab/internal/amqp"
	"hisab/internal/config"
	"hisab/internal/export"
	"hisab/internal/ledger"
	applog "hisab/internal/log"
	"hisab/internal/report"
	"hisab/internal/storage"
	"hisab/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: applog.DefaultConfig().Level, Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting hisab-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEventsQueue, cfg.AMQPReconcileQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Google Sheets export is optional
	var exporter worker.Exporter
	if cfg.SheetsExportEnabled {
		sheets, err := export.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = sheets
		logger.Info("Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	w := worker.New(ledger.NewReconciler(repo), report.NewReporter(repo), repo, exporter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent)
	})
	g.Go(func() error {
		return amqpClient.ConsumeReconcileRequests(ctx, w.HandleReconcileRequest)
	})
	g.Go(func() error {
		return w.RunSweep(ctx, cfg.ReconcileInterval)
	})
	g.Go(func() error {
		return w.RunBudgetCompletion(ctx, cfg.BudgetCheckInterval)
	})
	if exporter != nil {
		g.Go(func() error {
			return w.RunReportExport(ctx, cfg.ReportExportInterval)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
