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

	"github.com/rpattn/rosterscd/internal/app"
	"github.com/rpattn/rosterscd/internal/config"
	"github.com/rpattn/rosterscd/internal/export"
	"github.com/rpattn/rosterscd/internal/logging"
	"github.com/rpattn/rosterscd/internal/middleware"
	"github.com/rpattn/rosterscd/internal/trigger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	if cfg.ConfigFile != "" {
		logger.WithField("file", cfg.ConfigFile).Info("loaded config")
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise pipeline")
	}
	defer a.Close()

	entry := logrus.NewEntry(logger).WithField("component", "http")

	mux := http.NewServeMux()
	trigger.NewHandler(a.Orchestrator, trigger.HandlerOptions{
		RunTimeout: cfg.HTTP.RunTimeout,
		Logger:     entry,
	}).Register(mux)
	export.NewHTTPHandler(a.Exporter).Register(mux)
	mux.Handle("GET "+cfg.HTTP.MetricsPath, promhttp.Handler())

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(entry)(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTP.RunTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":   cfg.HTTP.Addr,
			"store":  cfg.Store.Driver,
			"source": cfg.Source.Driver,
		}).Info("Starting roster trigger server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// In-flight runs get the full run timeout to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.RunTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
