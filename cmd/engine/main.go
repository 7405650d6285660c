package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trade-signal-engine-go/internal/config"
	"trade-signal-engine-go/internal/database"
	"trade-signal-engine-go/internal/engine"
	"trade-signal-engine-go/internal/logger"
	"trade-signal-engine-go/internal/notify"
	"trade-signal-engine-go/internal/quotes"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize quote feed client
	quoteClient := quotes.NewRestClient(&cfg.Quotes, log)
	if err := quoteClient.Ping(context.Background()); err != nil {
		log.Fatal("Failed to connect to quote provider", zap.Error(err))
	}
	log.Info("Successfully connected to quote provider.")

	// Initialize notifier
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Telegram.Enabled {
		notifier = notify.NewTelegramNotifier(&cfg.Telegram, log)
		log.Info("Telegram delivery enabled")
	} else {
		log.Warn("Telegram delivery disabled, notifications will be dropped")
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize the engine and run the live trigger poller
	eng := engine.NewEngine(log, &cfg, db, notifier)
	poller := engine.NewPoller(eng, quoteClient)
	poller.Run(ctx)

	log.Info("Engine has been shut down.")
}
