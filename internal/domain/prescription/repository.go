package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/infrastructure/postgres"
)

const uniqueViolation = "23505"

// Repository provides event sourcing persistence. Every save queues the new
// events in the outbox within the same transaction.
type Repository struct {
	pool   *pgxpool.Pool
	topic  string
	logger *zap.Logger
}

// NewRepository creates a new repository. topic is where the outbox relay
// publishes the events.
func NewRepository(pool *pgxpool.Pool, topic string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, topic: topic, logger: logger}
}

// Save persists new events for an aggregate
func (r *Repository) Save(ctx context.Context, agg *Aggregate) error {
	changes := agg.Changes()
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	entries := make([]*postgres.OutboxEntry, 0, len(changes))
	for _, event := range changes {
		if err := insertEvent(ctx, tx, event); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s at version %d", ErrConcurrentModification, agg.ID(), event.Version)
			}
			return fmt.Errorf("insert event %s: %w", event.EventType, err)
		}
		entry, err := r.outboxEntry(event)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	if err := postgres.WriteEntries(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Debug("Prescription saved",
		zap.String("prescription_id", agg.ID()),
		zap.Int("version", agg.Version()),
		zap.Int("events", len(changes)),
	)
	agg.ClearChanges()
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	const query = `
		INSERT INTO prescription_events (aggregate_id, version, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Exec(ctx, query,
		event.AggregateID,
		event.Version,
		string(event.EventType),
		event.EventData,
		event.Timestamp,
	)
	return err
}

func (r *Repository) outboxEntry(event *Event) (*postgres.OutboxEntry, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &postgres.OutboxEntry{
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     string(event.EventType),
		Payload:       payload,
		KafkaTopic:    r.topic,
		KafkaKey:      event.AggregateID,
	}, nil
}

// Load retrieves an aggregate by ID
func (r *Repository) Load(ctx context.Context, id string) (*Aggregate, error) {
	events, err := r.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	agg := NewAggregate(id)
	if err := agg.LoadFromHistory(events); err != nil {
		return nil, err
	}
	return agg, nil
}

// Events returns the stored events of an aggregate in version order
func (r *Repository) Events(ctx context.Context, id string) ([]*Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	const query = `
		SELECT aggregate_id::text, version, event_type, payload, occurred_at
		FROM prescription_events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{AggregateType: AggregateType}
		var eventType string
		if err := rows.Scan(&e.AggregateID, &e.Version, &eventType, &e.EventData, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventType = EventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}
