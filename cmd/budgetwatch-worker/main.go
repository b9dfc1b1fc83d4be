package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"budgetwatch/internal/amqp"
	"budgetwatch/internal/config"
	applog "budgetwatch/internal/log"
	"budgetwatch/internal/mailer"
	"budgetwatch/internal/services"
	"budgetwatch/internal/storage"
	"budgetwatch/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting budgetwatch-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Email delivery is optional: without SMTP credentials the worker still
	// evaluates budgets, and alerts stay pending in SQLite.
	var alertWorker *worker.AlertWorker
	if cfg.MailEnabled() {
		sender := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPPassword, cfg.SMTPRecipient)
		alertWorker = worker.NewAlertWorker(repo, sender, cfg.EvalBatchSize, logger)
		logger.Info("SMTP delivery enabled", "host", cfg.SMTPHost, "recipient", cfg.SMTPRecipient)
	} else {
		logger.Info("SMTP delivery disabled - no SMTP credentials provided")
	}

	evaluation := services.NewEvaluationService(repo, amqpClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if alertWorker != nil {
		// On startup, deliver any alerts that missed the broker
		logger.Info("Performing startup delivery check...")
		if err := alertWorker.ProcessPendingAlerts(ctx); err != nil {
			logger.Error("Startup delivery check failed", applog.FieldError, err)
			// Don't exit - continue with normal operation
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if alertWorker != nil {
		g.Go(func() error {
			if err := amqpClient.ConsumeAlerts(gctx, alertWorker.HandleAlertMessage); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info("Skipping alert consumption - no mailer available")
	}

	// Periodic budget evaluation, plus a delivery sweep for missed alerts
	g.Go(func() error {
		ticker := time.NewTicker(cfg.EvalInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := evaluation.RunEvaluation(gctx, time.Now().UTC()); err != nil {
					logger.Error("Periodic evaluation failed", applog.FieldError, err)
				}
				if alertWorker != nil {
					if err := alertWorker.ProcessPendingAlerts(gctx); err != nil {
						logger.Error("Periodic delivery sweep failed", applog.FieldError, err)
					}
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete", applog.FieldOperation, applog.OpShutdown)
}
