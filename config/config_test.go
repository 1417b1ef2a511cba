package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"OCR_BACKEND", "OCR_MODEL", "OCR_ENDPOINT", "OCR_FORMAT", "OCR_WORKERS", "OCR_TIMEOUT", "OCR_MAX_RETRIES", "OCR_PREPROCESS"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2-vision:11b", cfg.Model)
	assert.Equal(t, "http://localhost:11434/api/generate", cfg.Endpoint)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2048, cfg.Image.MaxDimension)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: llava:13b
workers: 2
timeout: 30s
format: JSON
image:
  maxDimension: 1600
  grayscale: false
`), 0o644))

	t.Setenv("OCR_WORKERS", "6")
	t.Setenv("OCR_TIMEOUT", "45")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llava:13b", cfg.Model)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, 1600, cfg.Image.MaxDimension)
	assert.Equal(t, 1024, cfg.Image.MinDimension, "unset keys keep their defaults")
	assert.False(t, cfg.Image.Grayscale)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero workers", "OCR_WORKERS", "0"},
		{"non numeric workers", "OCR_WORKERS", "many"},
		{"unknown format", "OCR_FORMAT", "yaml"},
		{"unknown backend", "OCR_BACKEND", "paddle"},
		{"bad timeout", "OCR_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
