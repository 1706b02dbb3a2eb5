package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gearguard/gearguard/internal/database"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/tasks"
	"github.com/gearguard/gearguard/pkg/config"
	"github.com/gearguard/gearguard/pkg/queue"
	"github.com/gearguard/gearguard/pkg/util"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting GearGuard worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(db, feed.NewHub(), logger)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic jobs: schedule ticks each minute, invite expiry sweeps hourly.
	scheduler := queue.NewScheduler(&cfg.Redis)
	if _, err := scheduler.Register("* * * * *", tasks.NewScheduleTickTask()); err != nil {
		logger.Error("failed to register schedule tick", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register("0 * * * *", tasks.NewInviteExpiryTask()); err != nil {
		logger.Error("failed to register invite expiry", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
