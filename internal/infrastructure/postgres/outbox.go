package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OutboxEntry is an event waiting to be relayed to a topic
type OutboxEntry struct {
	ID            int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	KafkaTopic    string
	KafkaKey      string
	CreatedAt     time.Time
	RetryCount    int
	LastError     *string
}

// OutboxConfig holds configuration for the relay
type OutboxConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MaxRetries is the number of failed publishes before an entry is sent
	// to the dead letter topic
	MaxRetries      int    `mapstructure:"max_retries"`
	DeadLetterTopic string `mapstructure:"dead_letter_topic"`
}

// DefaultOutboxConfig returns sensible defaults
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		BatchSize:       100,
		PollInterval:    250 * time.Millisecond,
		MaxRetries:      5,
		DeadLetterTopic: "dead.letter",
	}
}

// Publisher sends one outbox payload to a topic
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, topic, key string, value []byte) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, topic, key string, value []byte) error {
	return f(ctx, topic, key, value)
}

// WriteEntries queues entries in tx, the same transaction as the change they
// describe. IDs and creation times are filled in.
func WriteEntries(ctx context.Context, tx pgx.Tx, entries []*OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}

	const query = `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, kafka_topic, kafka_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query, e.AggregateID, e.AggregateType, e.EventType, e.Payload, e.KafkaTopic, e.KafkaKey)
	}

	br := tx.SendBatch(ctx, batch)
	for _, e := range entries {
		if err := br.QueryRow().Scan(&e.ID, &e.CreatedAt); err != nil {
			br.Close()
			return fmt.Errorf("failed to write outbox entry %s: %w", e.EventType, err)
		}
	}
	return br.Close()
}

// Relay polls the outbox and publishes pending entries in insertion order
type Relay struct {
	pool      *pgxpool.Pool
	config    OutboxConfig
	publisher Publisher
	pending   prometheus.Gauge
	logger    *zap.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay creates an outbox relay. pending may be nil.
func NewRelay(pool *pgxpool.Pool, publisher Publisher, cfg OutboxConfig, pending prometheus.Gauge, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Relay{
		pool:      pool,
		config:    cfg,
		publisher: publisher,
		pending:   pending,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start begins polling
func (r *Relay) Start() {
	go r.processLoop()
	r.logger.Info("outbox relay started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval))
}

// Stop waits for the current batch and stops polling
func (r *Relay) Stop() {
	r.cancel()
	<-r.done
	r.logger.Info("outbox relay stopped")
}

func (r *Relay) processLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			n, err := r.ProcessBatch(r.ctx)
			if err != nil {
				r.logger.Error("outbox batch failed", zap.Error(err))
			}
			// keep draining while batches come back full
			for err == nil && n == r.config.BatchSize && r.ctx.Err() == nil {
				n, err = r.ProcessBatch(r.ctx)
			}
			r.refreshPending(r.ctx)
		}
	}
}

// ProcessBatch relays one batch and returns how many entries it handled.
// Rows are locked with SKIP LOCKED so several relays can run side by side.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outbox_process_batch")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	entries, err := fetchPending(ctx, tx, r.config.BatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("batch_size", len(entries)))

	for _, e := range entries {
		if err := r.relay(ctx, tx, e); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(entries), nil
}

func fetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]*OutboxEntry, error) {
	const query = `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       kafka_topic, kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*OutboxEntry, error) {
		e := &OutboxEntry{}
		err := row.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload,
			&e.KafkaTopic, &e.KafkaKey, &e.CreatedAt, &e.RetryCount, &e.LastError)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending: %w", err)
	}
	return entries, nil
}

// relay publishes one entry and records the outcome in tx. Publish failures
// are recorded, not returned; database failures abort the batch.
func (r *Relay) relay(ctx context.Context, tx pgx.Tx, e *OutboxEntry) error {
	ctx, span := r.tracer.Start(ctx, "outbox_relay_entry",
		trace.WithAttributes(
			attribute.Int64("entry_id", e.ID),
			attribute.String("event_type", e.EventType),
			attribute.String("aggregate_id", e.AggregateID),
		))
	defer span.End()

	pubErr := r.publisher.Publish(ctx, e.KafkaTopic, e.KafkaKey, e.Payload)
	if pubErr == nil {
		_, err := tx.Exec(ctx, `UPDATE outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1`, e.ID)
		if err != nil {
			return fmt.Errorf("mark processed %d: %w", e.ID, err)
		}
		r.logger.Debug("outbox entry relayed", zap.Int64("id", e.ID), zap.String("topic", e.KafkaTopic))
		return nil
	}

	span.RecordError(pubErr)
	e.RetryCount++
	msg := pubErr.Error()
	e.LastError = &msg
	r.logger.Warn("outbox publish failed",
		zap.Int64("id", e.ID),
		zap.Int("retry_count", e.RetryCount),
		zap.Error(pubErr))

	if e.RetryCount < r.config.MaxRetries {
		_, err := tx.Exec(ctx, `UPDATE outbox SET retry_count = $1, last_error = $2, updated_at = NOW() WHERE id = $3`,
			e.RetryCount, msg, e.ID)
		if err != nil {
			return fmt.Errorf("record retry %d: %w", e.ID, err)
		}
		return nil
	}

	dl, err := deadLetterPayload(e)
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, r.config.DeadLetterTopic, e.KafkaKey, dl); err != nil {
		r.logger.Error("failed to publish to dead letter", zap.Int64("id", e.ID), zap.Error(err))
		_, err := tx.Exec(ctx, `UPDATE outbox SET retry_count = $1, last_error = $2, updated_at = NOW() WHERE id = $3`,
			e.RetryCount, msg, e.ID)
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE outbox
		SET processed_at = NOW(), dead_lettered = TRUE, retry_count = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3`, e.RetryCount, msg, e.ID)
	if err != nil {
		return fmt.Errorf("mark dead lettered %d: %w", e.ID, err)
	}
	r.logger.Error("outbox entry dead lettered", zap.Int64("id", e.ID), zap.String("event_type", e.EventType))
	return nil
}

type deadLetter struct {
	OriginalTopic string          `json:"original_topic"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retry_count"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func deadLetterPayload(e *OutboxEntry) ([]byte, error) {
	dl := deadLetter{
		OriginalTopic: e.KafkaTopic,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		RetryCount:    e.RetryCount,
		CreatedAt:     e.CreatedAt,
	}
	if e.LastError != nil {
		dl.LastError = *e.LastError
	}
	b, err := json.Marshal(dl)
	if err != nil {
		return nil, fmt.Errorf("encode dead letter %d: %w", e.ID, err)
	}
	return b, nil
}

func (r *Relay) refreshPending(ctx context.Context) {
	if r.pending == nil {
		return
	}
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL`).Scan(&n); err != nil {
		r.logger.Debug("failed to count pending outbox entries", zap.Error(err))
		return
	}
	r.pending.Set(float64(n))
}

// CleanupProcessed removes relayed entries older than olderThan
func (r *Relay) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM outbox
		WHERE processed_at IS NOT NULL
		  AND dead_lettered = FALSE
		  AND processed_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	return result.RowsAffected(), nil
}
