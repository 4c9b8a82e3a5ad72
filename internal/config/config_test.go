package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/rx-dictation/internal/extraction"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("prescriptor-api", "")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, cfg.KafkaBrokers, cfg.Producer.Brokers)
	assert.Equal(t, extraction.DefaultConfig(), cfg.Extraction)
	assert.Equal(t, "prescriptor-api", cfg.Tracing.ServiceName)
	assert.Empty(t, cfg.Tracing.OTLPEndpoint)
	assert.Equal(t, 60*time.Second, cfg.Suggest.Timeout)
	assert.Equal(t, "suggest", cfg.Breaker.Name)
	assert.Equal(t, "transcript-worker", cfg.Consumer.GroupID)

	doctors, err := cfg.Doctors()
	require.NoError(t, err)
	assert.Equal(t, "dr-demo", doctors["demo-api-key-12345"])
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "rp-0:9092,rp-1:9092")
	t.Setenv("EXTRACTION_THRESHOLD", "70")
	t.Setenv("EXTRACTION_TOP_K", "3")
	t.Setenv("API_KEY", "secret")
	t.Setenv("SUGGEST_TIMEOUT", "5s")

	cfg, err := Load("transcript-worker", "")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"rp-0:9092", "rp-1:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"rp-0:9092", "rp-1:9092"}, cfg.Consumer.Brokers)
	assert.Equal(t, extraction.Config{Threshold: 70, TopK: 3}, cfg.Extraction)
	assert.Equal(t, 5*time.Second, cfg.Suggest.Timeout)

	doctors, err := cfg.Doctors()
	require.NoError(t, err)
	assert.Equal(t, "env-doctor", doctors["secret"])
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
medicines_csv: /data/medicines.csv
api_keys:
  - k1=dr-001
extraction:
  threshold: 90
  top_k: 2
`), 0o600))
	t.Setenv("EXTRACTION_TOP_K", "4")

	cfg, err := Load("rxextract", path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "/data/medicines.csv", cfg.MedicinesCSV)
	assert.Equal(t, 90, cfg.Extraction.Threshold)
	assert.Equal(t, 4, cfg.Extraction.TopK, "environment wins over the file")

	doctors, err := cfg.Doctors()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k1": "dr-001"}, doctors)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"threshold above 100", "EXTRACTION_THRESHOLD", "101"},
		{"negative top k", "EXTRACTION_TOP_K", "-1"},
		{"bad log level", "LOG_LEVEL", "loud"},
		{"malformed api keys", "API_KEYS", "nodoctor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("test", "")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("test", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("verbose")
	assert.Error(t, err)
}
