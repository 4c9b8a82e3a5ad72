// Package main provides the transcript worker entry point. It consumes
// dictated transcripts, extracts prescription records and publishes the
// results.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/config"
	"github.com/drfirst/rx-dictation/internal/dictation"
	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/infrastructure/postgres"
	"github.com/drfirst/rx-dictation/internal/infrastructure/redpanda"
	"github.com/drfirst/rx-dictation/internal/medicine"
	"github.com/drfirst/rx-dictation/internal/observability/metrics"
	"github.com/drfirst/rx-dictation/internal/observability/tracing"
	"github.com/drfirst/rx-dictation/pkg/idempotency"
	"github.com/drfirst/rx-dictation/pkg/workerpool"
)

const (
	serviceName     = "transcript-worker"
	cleanupInterval = time.Hour
)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	svc, err := dictation.NewService(catalog.Names(), cfg.Extraction, m, logger)
	if err != nil {
		logger.Fatal("invalid extraction config", zap.Error(err))
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	store := idempotency.NewPostgresStore(pool)
	inbox := idempotency.New(store, cfg.Inbox, logger)

	// extraction is deterministic, so a failure will not go away on retry
	workers, err := workerpool.New[string, []extraction.PrescriptionRecord](cfg.WorkerPool,
		func(ctx context.Context, text string) ([]extraction.PrescriptionRecord, error) {
			return svc.ExtractFrom(ctx, metrics.SourceWorker, text)
		},
		func(error) bool { return false },
		logger,
	)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	workers.Start()

	producer, err := redpanda.NewProducer(cfg.Producer, m.KafkaMessagesProduced, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	worker := dictation.NewWorker(workers, inbox, producer, redpanda.TopicExtractionResults, logger)

	consumer, err := redpanda.NewConsumer(cfg.Consumer, worker.Handle, m.KafkaMessagesConsumed, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}
	consumer.Start()

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := store.DeleteExpired(ctx); err != nil {
					logger.Warn("inbox cleanup failed", zap.Error(err))
				} else {
					logger.Debug("inbox cleaned up", zap.Int64("deleted", n))
				}
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !workers.IsHealthy() {
			http.Error(w, "worker pool saturated", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	server := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("transcript worker started",
		zap.Strings("topics", cfg.Consumer.Topics),
		zap.Int("workers", cfg.WorkerPool.Workers),
		zap.Int("medicines", catalog.Len()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	if err := consumer.Stop(); err != nil {
		logger.Warn("consumer stop failed", zap.Error(err))
	}
	if err := workers.Stop(); err != nil {
		logger.Warn("worker pool stop failed", zap.Error(err))
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	server.Shutdown(shutdownCtx)
	logger.Info("transcript worker stopped", zap.Any("stats", workers.Stats()))
}
