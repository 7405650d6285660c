package main

import (
	"fmt"
	"net/http"
	"os"

	"trade-signal-engine-go/internal/config"
	"trade-signal-engine-go/internal/database"
	"trade-signal-engine-go/internal/engine"
	"trade-signal-engine-go/internal/logger"
	"trade-signal-engine-go/internal/notify"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// The UI process shares the engine's write path so provider actions go
	// through the same guarded operations as the poller.
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Telegram.Enabled {
		notifier = notify.NewTelegramNotifier(&cfg.Telegram, log)
	}
	eng := engine.NewEngine(log, &cfg, db, notifier)

	// Setup HTTP routes
	apiHandler := NewAPIHandler(log, eng)
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/signals", apiHandler.CreateSignal).Methods(http.MethodPost)
	api.HandleFunc("/signals", apiHandler.ListSignals).Methods(http.MethodGet)
	api.HandleFunc("/signals/{id}", apiHandler.GetSignal).Methods(http.MethodGet)
	api.HandleFunc("/signals/{id}", apiHandler.EditSignal).Methods(http.MethodPatch)
	api.HandleFunc("/signals/{id}", apiHandler.DeleteSignal).Methods(http.MethodDelete)
	api.HandleFunc("/signals/{id}/publish", apiHandler.PublishSignal).Methods(http.MethodPost)
	api.HandleFunc("/signals/{id}/breakeven", apiHandler.ArmBreakeven).Methods(http.MethodPost)
	api.HandleFunc("/signals/{id}/close", apiHandler.CloseSignal).Methods(http.MethodPost)
	api.HandleFunc("/signals/{id}/updates", apiHandler.AddRung).Methods(http.MethodPost)
	api.HandleFunc("/signals/{id}/updates", apiHandler.ListRungs).Methods(http.MethodGet)
	api.HandleFunc("/updates/{id}", apiHandler.EditRung).Methods(http.MethodPatch)
	api.HandleFunc("/updates/{id}", apiHandler.DeleteRung).Methods(http.MethodDelete)
	api.HandleFunc("/signals/{id}/trades", apiHandler.OpenTrade).Methods(http.MethodPost)
	api.HandleFunc("/signals/{id}/trades/{userID}", apiHandler.GetUserTrade).Methods(http.MethodGet)
	api.HandleFunc("/trades", apiHandler.ListUserTrades).Methods(http.MethodGet)
	api.HandleFunc("/equity-curve", apiHandler.EquityCurve).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
