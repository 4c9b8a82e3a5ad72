// Package config loads service configuration from defaults, an optional
// YAML file and environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/infrastructure/postgres"
	"github.com/drfirst/rx-dictation/internal/infrastructure/redpanda"
	"github.com/drfirst/rx-dictation/internal/observability/tracing"
	"github.com/drfirst/rx-dictation/internal/suggest"
	"github.com/drfirst/rx-dictation/pkg/circuitbreaker"
	"github.com/drfirst/rx-dictation/pkg/idempotency"
	"github.com/drfirst/rx-dictation/pkg/workerpool"
)

// Config holds application configuration shared by all binaries
type Config struct {
	Port         string   `mapstructure:"port"`
	LogLevel     string   `mapstructure:"log_level"`
	DatabaseURL  string   `mapstructure:"database_url"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	MedicinesCSV string   `mapstructure:"medicines_csv"`

	// APIKeys lists "key=doctor_id" pairs. APIKey, when set, is an extra
	// key for the doctor "env-doctor".
	APIKeys []string `mapstructure:"api_keys"`
	APIKey  string   `mapstructure:"api_key"`

	Extraction extraction.Config       `mapstructure:"extraction"`
	Suggest    suggest.Config          `mapstructure:"suggest"`
	Breaker    circuitbreaker.Config   `mapstructure:"breaker"`
	Tracing    tracing.Config          `mapstructure:"tracing"`
	WorkerPool workerpool.Config       `mapstructure:"worker_pool"`
	Inbox      idempotency.Config      `mapstructure:"inbox"`
	Outbox     postgres.OutboxConfig   `mapstructure:"outbox"`
	Consumer   redpanda.ConsumerConfig `mapstructure:"consumer"`
	Producer   redpanda.ProducerConfig `mapstructure:"producer"`
}

// env maps config keys to the environment variables that override them
var env = map[string]string{
	"port":                  "PORT",
	"log_level":             "LOG_LEVEL",
	"database_url":          "DATABASE_URL",
	"kafka_brokers":         "KAFKA_BROKERS",
	"medicines_csv":         "MEDICINES_CSV",
	"api_keys":              "API_KEYS",
	"api_key":               "API_KEY",
	"extraction.threshold":  "EXTRACTION_THRESHOLD",
	"extraction.top_k":      "EXTRACTION_TOP_K",
	"suggest.base_url":      "SUGGEST_BASE_URL",
	"suggest.model":         "SUGGEST_MODEL",
	"suggest.api_key":       "SUGGEST_API_KEY",
	"suggest.timeout":       "SUGGEST_TIMEOUT",
	"tracing.otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	"tracing.sample_rate":   "OTEL_SAMPLE_RATE",
	"tracing.environment":   "ENVIRONMENT",
	"worker_pool.workers":   "WORKER_POOL_SIZE",
	"consumer.group_id":     "CONSUMER_GROUP",
}

// Load builds the configuration for service. path names an optional YAML
// file; environment variables win over the file, the file over defaults.
func Load(service, path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, service)

	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	// producer and consumer follow the shared broker list
	cfg.Producer.Brokers = cfg.KafkaBrokers
	cfg.Consumer.Brokers = cfg.KafkaBrokers

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("port", "8081")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", postgres.DefaultDatabaseURL)
	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("medicines_csv", "medicines.csv")
	v.SetDefault("api_keys", []string{"demo-api-key-12345=dr-demo", "test-api-key-67890=dr-test"})
	v.SetDefault("api_key", "")

	ext := extraction.DefaultConfig()
	v.SetDefault("extraction.threshold", ext.Threshold)
	v.SetDefault("extraction.top_k", ext.TopK)

	sg := suggest.DefaultConfig()
	v.SetDefault("suggest.base_url", sg.BaseURL)
	v.SetDefault("suggest.model", sg.Model)
	v.SetDefault("suggest.api_key", sg.APIKey)
	v.SetDefault("suggest.timeout", sg.Timeout)
	v.SetDefault("suggest.catalog_sample", sg.CatalogSample)

	cb := circuitbreaker.DefaultConfig("suggest")
	v.SetDefault("breaker.name", cb.Name)
	v.SetDefault("breaker.max_requests", cb.MaxRequests)
	v.SetDefault("breaker.interval", cb.Interval)
	v.SetDefault("breaker.timeout", cb.Timeout)
	v.SetDefault("breaker.failure_threshold", cb.FailureThreshold)
	v.SetDefault("breaker.failure_ratio", cb.FailureRatio)
	v.SetDefault("breaker.min_requests", cb.MinRequests)

	tr := tracing.DefaultConfig(service)
	v.SetDefault("tracing.service_name", tr.ServiceName)
	v.SetDefault("tracing.service_version", tr.ServiceVersion)
	v.SetDefault("tracing.environment", tr.Environment)
	// no exporter unless an endpoint is configured
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", tr.SampleRate)

	wp := workerpool.DefaultConfig()
	v.SetDefault("worker_pool.workers", wp.Workers)
	v.SetDefault("worker_pool.queue_size", wp.QueueSize)
	v.SetDefault("worker_pool.max_retries", wp.MaxRetries)
	v.SetDefault("worker_pool.retry_delay", wp.RetryDelay)
	v.SetDefault("worker_pool.shutdown_timeout", wp.ShutdownTimeout)

	in := idempotency.DefaultConfig()
	v.SetDefault("inbox.ttl", in.TTL)
	v.SetDefault("inbox.recovery_timeout", in.RecoveryTimeout)

	ob := postgres.DefaultOutboxConfig()
	v.SetDefault("outbox.batch_size", ob.BatchSize)
	v.SetDefault("outbox.poll_interval", ob.PollInterval)
	v.SetDefault("outbox.max_retries", ob.MaxRetries)
	v.SetDefault("outbox.dead_letter_topic", ob.DeadLetterTopic)

	cc := redpanda.DefaultConsumerConfig()
	v.SetDefault("consumer.group_id", cc.GroupID)
	v.SetDefault("consumer.topics", cc.Topics)
	v.SetDefault("consumer.session_timeout_ms", cc.SessionTimeoutMS)
	v.SetDefault("consumer.heartbeat_interval_ms", cc.HeartbeatIntervalMS)
	v.SetDefault("consumer.start_offset", cc.StartOffset)

	pc := redpanda.DefaultProducerConfig()
	v.SetDefault("producer.linger_ms", pc.LingerMS)
	v.SetDefault("producer.compression", pc.Compression)
	v.SetDefault("producer.required_acks", pc.RequiredAcks)
	v.SetDefault("producer.max_retries", pc.MaxRetries)
	v.SetDefault("producer.retry_backoff_ms", pc.RetryBackoffMS)
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if err := c.Extraction.Validate(); err != nil {
		return err
	}
	if _, err := c.Doctors(); err != nil {
		return err
	}
	if c.WorkerPool.Workers <= 0 {
		return fmt.Errorf("worker_pool.workers must be positive, got %d", c.WorkerPool.Workers)
	}
	return nil
}

// Doctors returns the API key to doctor ID table
func (c *Config) Doctors() (map[string]string, error) {
	doctors := make(map[string]string, len(c.APIKeys)+1)
	for _, pair := range c.APIKeys {
		key, doctor, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key, doctor = strings.TrimSpace(key), strings.TrimSpace(doctor)
		if !ok || key == "" || doctor == "" {
			return nil, fmt.Errorf("api_keys: entry %q is not key=doctor_id", pair)
		}
		doctors[key] = doctor
	}
	if c.APIKey != "" {
		doctors[c.APIKey] = "env-doctor"
	}
	return doctors, nil
}

// NewLogger builds a production zap logger at level
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
