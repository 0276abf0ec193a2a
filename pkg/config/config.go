package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Default values
const (
	DefaultMode                = "tool"
	DefaultMaxConcurrentJobs   = 2
	DefaultSequenceConcurrency = 4
	DefaultMaxInputBytes       = 2 * 1024 * 1024
	DefaultCallTimeout         = 5 * time.Minute
	DefaultMaxAttempts         = 3
	DefaultMinQualityScore     = 0.7
	DefaultStoreDirectory      = "data/jobs"
	DefaultStorageDirectory    = "data/outputs"
	DefaultKeyPrefix           = "media-pipeline"
)

// SetDefaults sets default values for the configuration
func SetDefaults() {
	// Pipeline
	viper.SetDefault("pipeline.default-mode", DefaultMode)
	viper.SetDefault("pipeline.max-concurrent-jobs", DefaultMaxConcurrentJobs)
	viper.SetDefault("pipeline.sequence-concurrency", DefaultSequenceConcurrency)
	viper.SetDefault("pipeline.max-input-bytes", DefaultMaxInputBytes)
	viper.SetDefault("pipeline.call-timeout", DefaultCallTimeout.String())
	viper.SetDefault("pipeline.shutdown-timeout", "60s")

	// Retry policy
	viper.SetDefault("retry.max-attempts", DefaultMaxAttempts)
	viper.SetDefault("retry.initial-interval", "1s")
	viper.SetDefault("retry.max-interval", "30s")
	viper.SetDefault("retry.multiplier", 2.0)
	viper.SetDefault("retry.randomization-factor", 0.1)
	viper.SetDefault("retry.capacity-multiplier", 4.0)

	// Extraction ruleset
	viper.SetDefault("extraction.target-words", 350)
	viper.SetDefault("extraction.min-words", 40)
	viper.SetDefault("extraction.max-sequences-tool", 10)
	viper.SetDefault("extraction.max-sequences-veo", 8)
	viper.SetDefault("extraction.summary-max-chars", 200)

	// Validation gate
	viper.SetDefault("validation.min-quality-score", DefaultMinQualityScore)
	viper.SetDefault("validation.weights.adherence", 0.4)
	viper.SetDefault("validation.weights.duration", 0.3)
	viper.SetDefault("validation.weights.safety", 0.3)
	viper.SetDefault("validation.neutral-adherence", 0.8)
	viper.SetDefault("validation.duration-tolerance", 0.1)
	viper.SetDefault("validation.min-video-seconds", 1.0)
	viper.SetDefault("validation.min-width", 480)
	viper.SetDefault("validation.min-height", 360)
	viper.SetDefault("validation.min-video-bytes", 1000)
	viper.SetDefault("validation.max-processing-time", "300s")
	viper.SetDefault("validation.video-formats", []string{".mp4", ".avi", ".mov"})
	viper.SetDefault("validation.unsafe-keywords", []string{
		"violence", "violenza", "sangue", "morte", "uccidere",
		"droga", "drug", "hate", "odio", "razzismo", "racism",
	})
	viper.SetDefault("validation.unsafe-emotions", []string{"violence", "hate"})

	// Job store
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.directory", DefaultStoreDirectory)
	viper.SetDefault("store.sqlite-dsn", "file:data/jobs.db?cache=shared&mode=rwc")
	viper.SetDefault("store.redis-addr", "localhost:6379")
	viper.SetDefault("store.key-prefix", DefaultKeyPrefix)

	// Artifact storage
	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.bucket", DefaultStorageDirectory)

	// Capabilities
	viper.SetDefault("capabilities.tool.image-style", "cinematic")
	viper.SetDefault("capabilities.tool.language", "it")
	viper.SetDefault("capabilities.veo.image-style", "cinematic, photorealistic")
	viper.SetDefault("capabilities.veo.language", "it")
	viper.SetDefault("capabilities.ffmpeg.ffmpeg-path", "ffmpeg")
	viper.SetDefault("capabilities.ffmpeg.ffprobe-path", "ffprobe")
	viper.SetDefault("capabilities.ffmpeg.fps", 24)
	viper.SetDefault("capabilities.ffmpeg.width", 1280)
	viper.SetDefault("capabilities.ffmpeg.height", 720)
	viper.SetDefault("capabilities.breaker.max-requests", 1)
	viper.SetDefault("capabilities.breaker.interval", "60s")
	viper.SetDefault("capabilities.breaker.timeout", "30s")
	viper.SetDefault("capabilities.breaker.min-requests", 3)
	viper.SetDefault("capabilities.breaker.failure-ratio", 0.6)
}

// LoadConfig loads configuration from defaults, an optional config file and the environment
func LoadConfig(configFile string) (*Config, error) {
	SetDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.media-pipeline")
		viper.AddConfigPath("/etc/media-pipeline/")
	}

	// Enable environment variable support
	viper.SetEnvPrefix("MEDIA_PIPELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is okay, we'll use defaults and env
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(&config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	return &config, nil
}

// postProcessConfig performs validation and adjustments to the configuration
func postProcessConfig(config *Config) error {
	if config.Pipeline.MaxConcurrentJobs <= 0 {
		config.Pipeline.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if config.Pipeline.SequenceConcurrency <= 0 {
		config.Pipeline.SequenceConcurrency = DefaultSequenceConcurrency
	}
	if config.Pipeline.MaxInputBytes <= 0 {
		config.Pipeline.MaxInputBytes = DefaultMaxInputBytes
	}
	config.Pipeline.CallTimeout = ParseDuration(config.Pipeline.CallTimeoutString, DefaultCallTimeout)

	validModes := []string{"tool", "veo"}
	if !contains(validModes, strings.ToLower(config.Pipeline.DefaultMode)) {
		return fmt.Errorf("invalid default mode: %s, must be one of: %s",
			config.Pipeline.DefaultMode, strings.Join(validModes, ", "))
	}

	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if config.Retry.CapacityMultiplier < 1 {
		config.Retry.CapacityMultiplier = 1
	}

	if config.Validation.MinQualityScore < 0 || config.Validation.MinQualityScore > 1 {
		return fmt.Errorf("invalid min-quality-score: %v, must be between 0 and 1",
			config.Validation.MinQualityScore)
	}
	w := config.Validation.Weights
	if w.Adherence < 0 || w.Duration < 0 || w.Safety < 0 || w.Adherence+w.Duration+w.Safety == 0 {
		return fmt.Errorf("invalid validation weights: %+v", w)
	}

	validStores := []string{"memory", "file", "sqlite", "redis"}
	if !contains(validStores, config.Store.Backend) {
		return fmt.Errorf("invalid store backend: %s, must be one of: %s",
			config.Store.Backend, strings.Join(validStores, ", "))
	}

	validStorage := []string{"local", "aws"}
	if !contains(validStorage, config.Storage.Backend) {
		return fmt.Errorf("invalid storage backend: %s, must be one of: %s",
			config.Storage.Backend, strings.Join(validStorage, ", "))
	}
	if config.Storage.Backend == "aws" && config.Storage.Bucket == "" {
		return fmt.Errorf("bucket is required for the aws storage backend")
	}

	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// SetupLogging configures logging. An empty logFile logs to stdout only.
func SetupLogging(verbose bool, logFile string) (*zap.Logger, error) {
	var config zap.Config

	if verbose {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	// Customize output format
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.MessageKey = "message"

	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	if logFile != "" {
		config.OutputPaths = append(config.OutputPaths, logFile)
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, logFile)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Debug("Logging initialized",
		zap.String("level", config.Level.String()),
		zap.String("log_file", logFile),
	)

	return logger, nil
}
