/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the disbursement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML file, else environment)
  2. Apply command-line flag overrides
  3. Initialize logger and SQLite store
  4. Create API handler, optionally seed demo scenarios
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (default: config.yaml; missing file falls back to env)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides storage.database_path
           Use ":memory:" for in-memory database
  -seed    Load every demo scenario on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -config=./config.yaml
  ./server -db=":memory:" -seed
  DISBURSEMENT_PORT=3000 LOG_FORMAT=json ./server

SEE ALSO:
  - config/config.go: Configuration and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/disbursement-engine/api"
	"github.com/warp/disbursement-engine/config"
	"github.com/warp/disbursement-engine/disbursement"
	"github.com/warp/disbursement-engine/logging"
	"github.com/warp/disbursement-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	seed := flag.Bool("seed", false, "Load demo scenarios on startup")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		logging.NewLogger(config.Defaults().Logging).Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.DatabasePath = *dbPath
	}
	if *seed {
		cfg.Server.SeedScenarios = true
	}

	logger := logging.NewLogger(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize database", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	allocator := disbursement.NewAllocator(disbursement.DefaultPrecision)
	if cfg.Allocation.Precision != nil {
		allocator = disbursement.NewAllocator(*cfg.Allocation.Precision)
	}

	handler := api.NewHandler(store, allocator, cfg.Allocation.BatchWorkers, logging.NewLoggerWithSystem(cfg.Logging, "api"))
	if cfg.Server.SeedScenarios {
		if err := handler.SeedScenarios(context.Background()); err != nil {
			logger.Warn("failed to seed scenarios", "error", err)
		}
	}

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"db", cfg.Storage.DatabasePath,
			"precision", allocator.Precision(),
			"batch_workers", cfg.Allocation.BatchWorkers,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
}
