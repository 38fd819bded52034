package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splitledger/splitledger/internal/currency"
	"github.com/splitledger/splitledger/internal/middleware"
	"github.com/splitledger/splitledger/internal/service"
	"github.com/splitledger/splitledger/internal/storage/sqlite"
	"github.com/splitledger/splitledger/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logger := logging.New()

	dbPath := getEnv("DB_PATH", "./data/ledger.db")
	addr := ":" + getEnv("PORT", "8080")

	archiveInterval, err := time.ParseDuration(getEnv("AUTO_ARCHIVE_INTERVAL", "1h"))
	if err != nil {
		logger.Error("invalid AUTO_ARCHIVE_INTERVAL", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("storage initialized", "database", dbPath)

	table := currency.DefaultTable()
	ledger := service.NewLedgerService(store, table, logger)
	groups := service.NewGroupService(store, table, ledger, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go groups.AutoArchiveLoop(ctx, archiveInterval)

	mux := http.NewServeMux()
	srv := &server{ledger: ledger, groups: groups, store: store, logger: logger}
	srv.routes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.Logging(logger, middleware.CORS(mux))
	httpServer := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "address", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
