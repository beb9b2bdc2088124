package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/fundledger/pkg/config"
	"github.com/mcclellann/fundledger/pkg/jobs"
	"github.com/mcclellann/fundledger/pkg/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// openStore opens the storage backend named by cfg.
func openStore(cfg config.Config) (store.Storage, error) {
	if cfg.Storage == config.StorageMemory {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(cfg.DBPath)
}

// NewRouter builds the HTTP handler for server.
func NewRouter(server *Server) *mux.Router {
	router := mux.NewRouter()
	router.Use(server.logRequests)
	server.Routes(router)
	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	storage, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.String("storage", cfg.Storage), zap.Error(err))
	}
	defer storage.Close()
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage; data is lost on shutdown")
	}

	server := NewServer(storage, logger, cfg)

	if cfg.RecomputeCron != "" {
		scheduler, err := jobs.StartRecompute(jobs.RecomputeConfig{
			Schedule: cfg.RecomputeCron,
			Location: cfg.Location(),
		}, server.ledger, logger)
		if err != nil {
			logger.Fatal("Failed to start recompute scheduler", zap.Error(err))
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(server),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage), zap.String("db", cfg.DBPath))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("Error starting server", zap.Error(err))
		return
	case <-quit:
		logger.Info("Shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
