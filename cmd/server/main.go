/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the household ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and environment
  2. Configure logging
  3. Initialize SQLite store
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: ledger.db)
           Use ":memory:" for in-memory database
  -rent    Total household rent in minor currency units, split
           equally across members at settlement (default: 0)

ENVIRONMENT:
  JWT_SECRET  Signing key for bearer tokens (required)
  LOG_LEVEL   debug, info, warn, error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=dev-secret ./server -db="./data/ledger.db" -rent=120000

  # Run with in-memory database
  JWT_SECRET=dev-secret ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/household-ledger/api"
	"github.com/warp/household-ledger/auth"
	"github.com/warp/household-ledger/ledger"
	"github.com/warp/household-ledger/pkg/logging"
	"github.com/warp/household-ledger/rent"
	"github.com/warp/household-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	totalRent := flag.Int64("rent", 0, "total household rent in minor currency units")
	flag.Parse()

	logging.Setup()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize handler and router
	tokens := auth.NewManager(secret, 24*time.Hour)
	handler := api.NewHandler(store, rent.NewEqualSplitter(ledger.NewAmount(*totalRent)))
	router := api.NewRouter(handler, tokens)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
