// Package main provides the prescriptor API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/api/handlers"
	"github.com/drfirst/rx-dictation/internal/api/middleware"
	"github.com/drfirst/rx-dictation/internal/config"
	"github.com/drfirst/rx-dictation/internal/dictation"
	"github.com/drfirst/rx-dictation/internal/domain/prescription"
	"github.com/drfirst/rx-dictation/internal/infrastructure/postgres"
	"github.com/drfirst/rx-dictation/internal/infrastructure/redpanda"
	"github.com/drfirst/rx-dictation/internal/medicine"
	"github.com/drfirst/rx-dictation/internal/observability/metrics"
	"github.com/drfirst/rx-dictation/internal/observability/tracing"
	"github.com/drfirst/rx-dictation/internal/suggest"
	"github.com/drfirst/rx-dictation/pkg/circuitbreaker"
)

const serviceName = "prescriptor-api"

func main() {
	cfg, err := config.Load(serviceName, os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New(nil)

	catalog, err := medicine.Load(cfg.MedicinesCSV, logger)
	if err != nil {
		logger.Fatal("failed to load medicine catalog", zap.Error(err))
	}

	dictationSvc, err := dictation.NewService(catalog.Names(), cfg.Extraction, m, logger)
	if err != nil {
		logger.Fatal("invalid extraction config", zap.Error(err))
	}

	breaker, err := circuitbreaker.New(cfg.Breaker, logger, func(name string, _, to circuitbreaker.State) {
		m.SetBreakerState(name, to.Value())
	})
	if err != nil {
		logger.Fatal("circuit breaker creation failed", zap.Error(err))
	}
	suggester := suggest.NewService(
		suggest.NewOpenAICompleter(cfg.Suggest),
		catalog,
		breaker,
		cfg.Suggest,
		func(outcome string) { m.SuggestionRequests.WithLabelValues(outcome).Inc() },
		logger,
	)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	doctors, err := cfg.Doctors()
	if err != nil {
		logger.Fatal("invalid api keys", zap.Error(err))
	}

	repo := prescription.NewRepository(pool, redpanda.TopicPrescriptionEvents, logger)
	extractionHandler := handlers.NewExtractionHandler(dictationSvc, suggester, catalog, logger)
	prescriptionHandler := handlers.NewPrescriptionHandler(repo, dictationSvc, catalog, m, logger)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(m.ObserveRequest))
	r.Use(middleware.Tracing(serviceName))

	// Health check (no auth)
	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(doctors))
		extractionHandler.Mount(r)
		r.Mount("/prescriptions", prescriptionHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Suggest.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting prescriptor API",
		zap.String("port", cfg.Port),
		zap.Int("medicines", catalog.Len()),
		zap.Bool("tracing", tp.Enabled()),
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":%q}`, serviceName)
}
