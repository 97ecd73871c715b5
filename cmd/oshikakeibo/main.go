package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"oshikakeibo/internal/amqp"
	"oshikakeibo/internal/cli"
	apphttp "oshikakeibo/internal/http"
	applog "oshikakeibo/internal/log"
	"oshikakeibo/internal/notify"
	"oshikakeibo/internal/services"
	gsheet "oshikakeibo/internal/sheets/google"
	"oshikakeibo/internal/store/memory"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	store := memory.New(memory.WithClock(now))
	if cfg.SeedDemo {
		if err := memory.SeedDemo(store); err != nil {
			logger.Error("Failed to seed demo data", "error", err)
			os.Exit(1)
		}
		logger.Info("Demo data seeded")
	}

	opts := services.Options{
		Now: now,
		Settings: notify.Settings{
			BudgetAlerts:      cfg.BudgetAlerts,
			BirthdayReminders: cfg.BirthdayReminders,
		},
		CacheSize: cfg.CacheSize,
	}

	if archive := cli.InitArchive(logger, cfg.ArchiveDBPath); archive != nil {
		defer archive.Close()
		opts.Archive = archive
	} else {
		logger.Info("Archive disabled - no ARCHIVE_DB_PATH provided")
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Notifications still reach the feed; only publishing is skipped.
			logger.Warn("AMQP unavailable, notifications will not be published", "error", err)
		} else {
			defer client.Close()
			opts.Publisher = client
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	if cfg.GoogleSpreadsheetID != "" {
		mirror, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		opts.Mirror = mirror
		logger.Info("Google Sheets mirror ready", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	svc := services.NewLedgerService(store, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Expire event budgets left from earlier months before serving.
	if report, err := svc.RunMaintenance(ctx); err != nil {
		logger.Warn("Startup maintenance failed", "error", err)
	} else {
		logger.Info("Startup maintenance done", "expired_budgets", report.ExpiredBudgets, "notifications", report.NewNotifications)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, logger, apphttp.WithRateLimit(cfg.RateLimit))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting oshikakeibo server", "port", cfg.Port, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		runMaintenance(gctx, svc, logger.WithComponent(applog.ComponentMaintenance), cfg.MaintenanceInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// runMaintenance rolls event budgets over, refreshes notifications and
// prunes the view cache every interval until ctx is cancelled.
func runMaintenance(ctx context.Context, svc *services.LedgerService, logger *applog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := svc.RunMaintenance(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Maintenance failed", "error", err)
				continue
			}
			logger.InfoContext(ctx, "Maintenance completed",
				"expired_budgets", report.ExpiredBudgets,
				"new_notifications", report.NewNotifications,
				"cache_cleaned", report.CacheCleaned)
		}
	}
}
