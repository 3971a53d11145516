package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fableturn/internal/config"
	"fableturn/internal/engine"
	"fableturn/internal/handlers"
	"fableturn/internal/logger"
	"fableturn/internal/memory"
	"fableturn/internal/middleware"
	"fableturn/internal/oracle"
	"fableturn/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Fableturn API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"oracle_provider", cfg.OracleProvider,
		"model", cfg.OracleModel,
		"game_id", cfg.GameID)

	var oracleSvc oracle.Oracle
	switch strings.ToLower(cfg.OracleProvider) {
	case "openai":
		if cfg.OracleAPIKey == "" {
			log.Error("Oracle API key is required when using the openai provider")
			os.Exit(1)
		}
		oracleSvc = oracle.NewOpenAIOracle(cfg.OracleAPIKey, cfg.OracleBaseURL, cfg.OracleModel, cfg.OracleLogic, cfg.OracleTimeout, log)
		log.Info("Using OpenAI oracle provider")
	case "mock":
		oracleSvc = oracle.NewMockOracle()
		log.Warn("Using mock oracle provider; turns will be hollow")
	default:
		log.Error("Invalid oracle provider specified", "provider", cfg.OracleProvider, "supported", []string{"openai", "mock"})
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startCancel()

	worldStore, err := store.NewSQLiteStore(startCtx, cfg.DBPath, cfg.SavesDir, log)
	if err != nil {
		log.Error("Failed to open world store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	log.Info("World store opened", "path", cfg.DBPath)

	var recall memory.Recall = memory.NullRecall{}
	if cfg.RedisURL != "" {
		r, err := memory.NewRedisRecall(startCtx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("Recall memory unavailable, continuing without it", "error", err)
		} else {
			recall = r
			log.Info("Recall memory connected")
		}
	}

	eng, err := engine.New(startCtx, engine.Config{
		Store:    worldStore,
		Oracle:   oracleSvc,
		Recall:   recall,
		GameID:   cfg.GameID,
		DBPath:   cfg.DBPath,
		SavesDir: cfg.SavesDir,
		Logger:   log,
	})
	if err != nil {
		log.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(worldStore, log))
	mux.Handle("/v1/turn", handlers.NewTurnHandler(eng, log))
	mux.Handle("/v1/undo", handlers.NewUndoHandler(eng, log))
	mux.Handle("/v1/reset", handlers.NewResetHandler(eng, log))

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.Logger(log, mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: a turn can legitimately take minutes of oracle
		// time; the turn handler carries its own deadline.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := recall.Close(); err != nil {
		log.Error("Error closing recall memory", "error", err)
	}
	if err := worldStore.Close(); err != nil {
		log.Error("Error closing world store", "error", err)
	}

	log.Info("Server exited")
}
