// Package dictation runs extraction against the loaded medicine vocabulary
// for the API, the transcript worker and the CLI.
package dictation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/observability/metrics"
)

// Service is safe for concurrent use. The vocabulary can be swapped with
// Reload while extractions run.
type Service struct {
	vocab   atomic.Pointer[extraction.Vocabulary]
	config  extraction.Config
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewService validates cfg and prepares the vocabulary. m may be nil.
func NewService(names []string, cfg extraction.Config, m *metrics.Metrics, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config:  cfg,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("dictation"),
	}
	s.Reload(names)
	return s, nil
}

// Reload replaces the vocabulary
func (s *Service) Reload(names []string) {
	v := extraction.NewVocabulary(names)
	s.vocab.Store(v)
	if s.metrics != nil {
		s.metrics.VocabularySize.Set(float64(v.Len()))
	}
	s.logger.Info("vocabulary loaded", zap.Int("entries", v.Len()))
}

// VocabularySize returns the number of usable vocabulary entries
func (s *Service) VocabularySize() int {
	return s.vocab.Load().Len()
}

// Config returns the matching parameters
func (s *Service) Config() extraction.Config {
	return s.config
}

// Extract runs extraction for an API caller
func (s *Service) Extract(ctx context.Context, text string) ([]extraction.PrescriptionRecord, error) {
	return s.ExtractFrom(ctx, metrics.SourceAPI, text)
}

// ExtractFrom runs extraction and labels metrics with source. On error no
// records are returned.
func (s *Service) ExtractFrom(ctx context.Context, source, text string) ([]extraction.PrescriptionRecord, error) {
	a, err := s.analyze(ctx, source, text)
	if err != nil {
		return nil, err
	}
	return a.Records, nil
}

// Analyze runs extraction and keeps the intermediate candidates and spans
func (s *Service) Analyze(ctx context.Context, text string) (*extraction.Analysis, error) {
	return s.analyze(ctx, metrics.SourceAPI, text)
}

func (s *Service) analyze(ctx context.Context, source, text string) (*extraction.Analysis, error) {
	_, span := s.tracer.Start(ctx, "dictation_extract",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.Int("text_length", len(text)),
		))
	defer span.End()

	start := time.Now()
	a, err := s.vocab.Load().Analyze(text, s.config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		if s.metrics != nil {
			s.metrics.ObserveExtractionError(source, failureReason(err))
		}
		s.logger.Warn("extraction failed", zap.String("source", source), zap.Error(err))
		return nil, err
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveExtraction(source, len(a.Records), elapsed)
	}
	span.SetAttributes(attribute.Int("records", len(a.Records)))
	s.logger.Debug("extraction finished",
		zap.String("source", source),
		zap.Int("records", len(a.Records)),
		zap.Duration("elapsed", elapsed))
	return a, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, extraction.ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, extraction.ErrExtractionFailed):
		return "invalid_input"
	default:
		return "internal"
	}
}
