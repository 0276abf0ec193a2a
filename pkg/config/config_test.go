package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "tool", cfg.Pipeline.DefaultMode)
	assert.Equal(t, DefaultMaxConcurrentJobs, cfg.Pipeline.MaxConcurrentJobs)
	assert.Equal(t, DefaultCallTimeout, cfg.Pipeline.CallTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 0.7, cfg.Validation.MinQualityScore)
	assert.Equal(t, 10, cfg.Extraction.MaxSequencesTool)
	assert.Equal(t, 8, cfg.Extraction.MaxSequencesVeo)
	assert.Contains(t, cfg.Validation.UnsafeKeywords, "violenza")
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
pipeline:
  default-mode: veo
  max-concurrent-jobs: 7
  call-timeout: 45s
validation:
  min-quality-score: 0.8
store:
  backend: sqlite
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "veo", cfg.Pipeline.DefaultMode)
	assert.Equal(t, 7, cfg.Pipeline.MaxConcurrentJobs)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.CallTimeout)
	assert.Equal(t, 0.8, cfg.Validation.MinQualityScore)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	// untouched sections keep their defaults
	assert.Equal(t, 4.0, cfg.Retry.CapacityMultiplier)
}

func TestPostProcessConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
		errMsg   string
	}{
		{
			name:     "Unknown mode",
			settings: map[string]interface{}{"pipeline.default-mode": "cartoon"},
			errMsg:   "invalid default mode",
		},
		{
			name:     "Score above one",
			settings: map[string]interface{}{"validation.min-quality-score": 1.5},
			errMsg:   "min-quality-score",
		},
		{
			name:     "Unknown store",
			settings: map[string]interface{}{"store.backend": "etcd"},
			errMsg:   "invalid store backend",
		},
		{
			name:     "Unknown storage",
			settings: map[string]interface{}{"storage.backend": "ftp"},
			errMsg:   "invalid storage backend",
		},
		{
			name: "Zero weights",
			settings: map[string]interface{}{
				"validation.weights.adherence": 0.0,
				"validation.weights.duration":  0.0,
				"validation.weights.safety":    0.0,
			},
			errMsg: "invalid validation weights",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			SetDefaults()
			for key, value := range tt.settings {
				viper.Set(key, value)
			}

			_, err := LoadConfig("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestPostProcessConfigFillsZeroValues(t *testing.T) {
	cfg := &Config{
		Pipeline: PipelineConfig{DefaultMode: "tool", CallTimeoutString: "bogus"},
		Validation: ValidationConfig{
			MinQualityScore: 0.5,
			Weights:         ValidationWeights{Adherence: 1},
		},
		Store:   StoreConfig{Backend: "memory"},
		Storage: StorageConfig{Backend: "local"},
	}

	require.NoError(t, postProcessConfig(cfg))
	assert.Equal(t, DefaultMaxConcurrentJobs, cfg.Pipeline.MaxConcurrentJobs)
	assert.Equal(t, DefaultSequenceConcurrency, cfg.Pipeline.SequenceConcurrency)
	assert.Equal(t, DefaultCallTimeout, cfg.Pipeline.CallTimeout)
	assert.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1.0, cfg.Retry.CapacityMultiplier)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDuration("2s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("nope", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("-1s", time.Minute))
}
