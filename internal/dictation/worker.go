package dictation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/infrastructure/redpanda"
	"github.com/drfirst/rx-dictation/pkg/idempotency"
)

const handlerName = "transcript-extraction"

// Transcript is an inbound dictation to extract
type Transcript struct {
	TranscriptID   string `json:"transcript_id"`
	PrescriptionID string `json:"prescription_id,omitempty"`
	Text           string `json:"text"`
}

// Result is published for every transcript handled
type Result struct {
	TranscriptID   string                          `json:"transcript_id"`
	PrescriptionID string                          `json:"prescription_id,omitempty"`
	Records        []extraction.PrescriptionRecord `json:"records"`
	// Error is set, and Records empty, when the transcript could not be
	// extracted
	Error       string    `json:"error,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Runner executes extraction with bounded concurrency
type Runner interface {
	Do(ctx context.Context, id string, text string) ([]extraction.PrescriptionRecord, error)
}

// Publisher sends a result to a topic
type Publisher interface {
	Publish(ctx context.Context, rec redpanda.Record) error
}

// Worker turns transcripts from the inbound topic into extraction results
type Worker struct {
	runner    Runner
	inbox     *idempotency.Inbox
	publisher Publisher
	topic     string
	logger    *zap.Logger
	now       func() time.Time
}

// NewWorker creates a worker publishing to topic
func NewWorker(runner Runner, inbox *idempotency.Inbox, publisher Publisher, topic string, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		runner:    runner,
		inbox:     inbox,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle processes one consumed message. Malformed messages are reported as
// poison so the consumer skips them; publish failures are returned for
// redelivery.
func (w *Worker) Handle(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	var t Transcript
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		return fmt.Errorf("%w: decode transcript: %v", redpanda.ErrPoison, err)
	}
	t.TranscriptID = strings.TrimSpace(t.TranscriptID)
	if t.TranscriptID == "" {
		return fmt.Errorf("%w: transcript_id is required", redpanda.ErrPoison)
	}

	key := idempotency.GenerateKey("transcript", t.TranscriptID)
	res, err := w.inbox.Process(ctx, key, handlerName, func(ctx context.Context) (json.RawMessage, error) {
		return w.extractAndPublish(ctx, t)
	})
	switch {
	case err == nil:
	case errors.Is(err, idempotency.ErrMessageInProgress), errors.Is(err, idempotency.ErrDuplicateMessage):
		w.logger.Info("transcript already being handled", zap.String("transcript_id", t.TranscriptID))
		return nil
	case errors.Is(err, idempotency.ErrPreviouslyFailed):
		return fmt.Errorf("%w: %v", redpanda.ErrPoison, err)
	default:
		return err
	}

	if res.Duplicate {
		w.logger.Info("duplicate transcript skipped", zap.String("transcript_id", t.TranscriptID))
	}
	return nil
}

func (w *Worker) extractAndPublish(ctx context.Context, t Transcript) (json.RawMessage, error) {
	result := Result{
		TranscriptID:   t.TranscriptID,
		PrescriptionID: t.PrescriptionID,
		Records:        []extraction.PrescriptionRecord{},
	}

	records, err := w.runner.Do(ctx, t.TranscriptID, t.Text)
	switch {
	case err == nil:
		result.Records = records
	case errors.Is(err, extraction.ErrExtractionFailed), errors.Is(err, extraction.ErrInvalidConfiguration):
		// deterministic, so report it instead of retrying
		result.Error = err.Error()
	default:
		return nil, err
	}
	result.ExtractedAt = w.now().UTC()

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, idempotency.Permanent(fmt.Errorf("encode result: %w", err))
	}

	err = w.publisher.Publish(ctx, redpanda.Record{
		Topic:   w.topic,
		Key:     t.TranscriptID,
		Value:   payload,
		Headers: map[string]string{"content-type": "application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("publish extraction result: %w", err)
	}

	w.logger.Info("transcript extracted",
		zap.String("transcript_id", t.TranscriptID),
		zap.Int("records", len(result.Records)),
		zap.Bool("failed", result.Error != ""))
	return payload, nil
}
