/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the logger
  3. Open the store selected by STORE_DRIVER
  4. Create the engine and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT, default 8080)
  -db      Database path (DATABASE_PATH, default readiness.db)
           Use ":memory:" for an in-memory SQLite database

ENVIRONMENT:
  STORE_DRIVER          sqlite | gorm | memory
  GRACE_PERIOD_MINUTES  Minutes after shift start still GREEN
  MAX_LOOKBACK_DAYS     Oldest day reconciliation will look at
  LOG_LEVEL, LOG_FORMAT Logger setup (text | json)
  ALLOWED_ORIGINS       Comma separated CORS origins

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
  for active requests, then closes the database.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/readiness-engine/api"
	"github.com/warp/readiness-engine/config"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/engine/store"
	"github.com/warp/readiness-engine/store/gormstore"
	"github.com/warp/readiness-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	flag.Parse()
	cfg.Port, cfg.DatabasePath = *port, *dbPath

	log, err := cfg.NewLogger()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build logger")
	}

	backend, closer, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer closer.Close()

	eng := engine.New(backend, engineOptions(cfg, log))
	handler := api.NewHandler(eng, backend, log)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.StoreDriver,
			"db":     cfg.DatabasePath,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	log.Info("Server stopped")
}

// engineOptions passes the configured grace through as given, so a zero
// GRACE_PERIOD_MINUTES means no grace.
func engineOptions(cfg config.Config, log logrus.FieldLogger) engine.Options {
	grace := cfg.GracePeriodMinutes
	return engine.Options{
		Logger:          log,
		GracePeriod:     &grace,
		MaxLookbackDays: cfg.MaxLookbackDays,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(cfg config.Config, log logrus.FieldLogger) (api.Backend, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return store.NewMemory(), nopCloser{}, nil
	case config.DriverGorm:
		s, err := gormstore.Open(cfg.DatabasePath, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		s, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
