/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the canteen checkout server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags + environment)
  2. Build structured logger
  3. Initialize SQLite store
  4. Wire checkout engine, identity resolver, advisor client
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  -address       HTTP listen address (ADDRESS, default :8080)
  -db            SQLite database path (DATABASE_PATH, default canteen.db)
                 Use ":memory:" for an ephemeral database
  -log-level     zap level (LOG_LEVEL, default info)
  -advisor-url   advisor base URL (ADVISOR_BASE_URL)
  -advisor-key   advisor API key (ADVISOR_API_KEY, empty disables)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/canteen.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/canteen-engine/advisor"
	"github.com/warp/canteen-engine/api"
	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/checkout"
	"github.com/warp/canteen-engine/config"
	"github.com/warp/canteen-engine/logger"
	"github.com/warp/canteen-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("invalid log level: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire the domain
	engine := checkout.New(store)
	resolver := canteen.NewResolver(store)
	advice := advisor.New(cfg.AdvisorBaseURL, cfg.AdvisorAPIKey)
	if !advice.Available() {
		log.Warn("advisor disabled: no API key configured")
	}

	handler := &api.Handler{
		Accounts: store,
		Products: store,
		Orders:   store,
		Engine:   engine,
		Resolver: resolver,
		Advisor:  advice,
		Seeder:   store,
		Log:      log,
	}

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", zap.String("address", cfg.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
