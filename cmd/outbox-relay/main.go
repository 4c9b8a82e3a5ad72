// Package main provides the outbox relay service entry point. It publishes
// prescription events written by the API to Redpanda.
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
	"github.com/drfirst/rx-dictation/internal/infrastructure/postgres"
	"github.com/drfirst/rx-dictation/internal/infrastructure/redpanda"
	"github.com/drfirst/rx-dictation/internal/observability/metrics"
	"github.com/drfirst/rx-dictation/internal/observability/tracing"
)

const (
	serviceName      = "outbox-relay"
	cleanupInterval  = time.Hour
	processedRetains = 7 * 24 * time.Hour
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

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Fatal("topic setup failed", zap.Error(err))
	}
	admin.Close()

	producer, err := redpanda.NewProducer(cfg.Producer, m.KafkaMessagesProduced, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	publisher := postgres.PublisherFunc(func(ctx context.Context, topic, key string, value []byte) error {
		return producer.Publish(ctx, redpanda.Record{Topic: topic, Key: key, Value: value})
	})
	relay := postgres.NewRelay(pool, publisher, cfg.Outbox, m.OutboxPending, logger)
	relay.Start()
	logger.Info("outbox relay started")

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := relay.CleanupProcessed(ctx, processedRetains)
				if err != nil {
					logger.Warn("outbox cleanup failed", zap.Error(err))
					continue
				}
				logger.Debug("outbox cleaned up", zap.Int64("deleted", n))
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	relay.Stop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	server.Shutdown(shutdownCtx)
	logger.Info("outbox relay stopped")
}
