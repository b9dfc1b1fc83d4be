package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetwatch/internal/amqp"
	"budgetwatch/internal/anomaly"
	"budgetwatch/internal/config"
	apphttp "budgetwatch/internal/http"
	applog "budgetwatch/internal/log"
	"budgetwatch/internal/services"
	"budgetwatch/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

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

	// AMQP is optional for the API: alerts stay pending in SQLite and the
	// worker's startup sweep delivers them once the broker is back.
	var publisher services.AlertPublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, alerts will stay pending", applog.FieldError, err)
	} else {
		publisher = amqpClient
		defer amqpClient.Close()
	}

	detector := anomaly.NewDetector(cfg.AnomalyContamination)
	expenses := services.NewExpenseService(repo, publisher, detector, logger)
	evaluation := services.NewEvaluationService(repo, publisher, logger)

	srv := apphttp.NewServer(":"+cfg.Port, expenses, evaluation, repo, repo, logger)
	srv.DefaultForecastDays = cfg.ForecastHorizonDays

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting budgetwatch server",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"db_path", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}
