package config

import (
	"time"
)

// PipelineConfig controls admission and per-job concurrency
type PipelineConfig struct {
	DefaultMode         string        `mapstructure:"default-mode"`
	MaxConcurrentJobs   int           `mapstructure:"max-concurrent-jobs"`
	SequenceConcurrency int           `mapstructure:"sequence-concurrency"`
	MaxInputBytes       int           `mapstructure:"max-input-bytes"`
	CallTimeoutString   string        `mapstructure:"call-timeout"`
	CallTimeout         time.Duration `mapstructure:"-"`
	ShutdownTimeout     string        `mapstructure:"shutdown-timeout"`
}

// RetryConfig defines the per-invocation retry policy
type RetryConfig struct {
	MaxAttempts         int     `mapstructure:"max-attempts"`
	InitialInterval     string  `mapstructure:"initial-interval"`
	MaxInterval         string  `mapstructure:"max-interval"`
	Multiplier          float64 `mapstructure:"multiplier"`
	RandomizationFactor float64 `mapstructure:"randomization-factor"`
	CapacityMultiplier  float64 `mapstructure:"capacity-multiplier"`
}

// ExtractionConfig defines the scene segmentation ruleset
type ExtractionConfig struct {
	TargetWords      int `mapstructure:"target-words"`
	MinWords         int `mapstructure:"min-words"`
	MaxSequencesTool int `mapstructure:"max-sequences-tool"`
	MaxSequencesVeo  int `mapstructure:"max-sequences-veo"`
	SummaryMaxChars  int `mapstructure:"summary-max-chars"`
}

// ValidationWeights weights the quality score components
type ValidationWeights struct {
	Adherence float64 `mapstructure:"adherence"`
	Duration  float64 `mapstructure:"duration"`
	Safety    float64 `mapstructure:"safety"`
}

// ValidationConfig defines the quality gate thresholds
type ValidationConfig struct {
	MinQualityScore   float64           `mapstructure:"min-quality-score"`
	Weights           ValidationWeights `mapstructure:"weights"`
	NeutralAdherence  float64           `mapstructure:"neutral-adherence"`
	DurationTolerance float64           `mapstructure:"duration-tolerance"`
	MinVideoSeconds   float64           `mapstructure:"min-video-seconds"`
	MinWidth          int               `mapstructure:"min-width"`
	MinHeight         int               `mapstructure:"min-height"`
	MinVideoBytes     int64             `mapstructure:"min-video-bytes"`
	MaxProcessingTime string            `mapstructure:"max-processing-time"`
	VideoFormats      []string          `mapstructure:"video-formats"`
	UnsafeKeywords    []string          `mapstructure:"unsafe-keywords"`
	UnsafeEmotions    []string          `mapstructure:"unsafe-emotions"`
}

// StoreConfig selects the durable job store
type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	Directory     string `mapstructure:"directory"`
	SQLiteDSN     string `mapstructure:"sqlite-dsn"`
	RedisAddr     string `mapstructure:"redis-addr"`
	RedisPassword string `mapstructure:"redis-password"`
	RedisDB       int    `mapstructure:"redis-db"`
	KeyPrefix     string `mapstructure:"key-prefix"`
}

// StorageConfig selects the artifact storage backend
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Bucket      string `mapstructure:"bucket"`
	Directory   string `mapstructure:"directory"`
	AWSRegion   string `mapstructure:"aws-region"`
	AWSProfile  string `mapstructure:"aws-profile"`
	AWSEndpoint string `mapstructure:"aws-endpoint"`
}

// EndpointConfig describes one HTTP generation service
type EndpointConfig struct {
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api-key"`
	Timeout string `mapstructure:"timeout"`
}

// FFmpegConfig configures the local composer and prober
type FFmpegConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg-path"`
	FFprobePath string `mapstructure:"ffprobe-path"`
	FPS         int    `mapstructure:"fps"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	WorkDir     string `mapstructure:"work-dir"`
}

// ModeConfig wires the backends serving one pipeline mode
type ModeConfig struct {
	ImageStyle string         `mapstructure:"image-style"`
	Language   string         `mapstructure:"language"`
	Voice      string         `mapstructure:"voice"`
	Image      EndpointConfig `mapstructure:"image"`
	Speech     EndpointConfig `mapstructure:"speech"`
	// Video is optional; when empty the local ffmpeg composer is used
	Video EndpointConfig `mapstructure:"video"`
}

// BreakerConfig configures the per-endpoint circuit breaker
type BreakerConfig struct {
	MaxRequests  uint32  `mapstructure:"max-requests"`
	Interval     string  `mapstructure:"interval"`
	Timeout      string  `mapstructure:"timeout"`
	MinRequests  uint32  `mapstructure:"min-requests"`
	FailureRatio float64 `mapstructure:"failure-ratio"`
}

// CapabilitiesConfig wires generation backends per mode
type CapabilitiesConfig struct {
	Tool    ModeConfig    `mapstructure:"tool"`
	Veo     ModeConfig    `mapstructure:"veo"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// LoggingConfig configures zap output
type LoggingConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	File    string `mapstructure:"file"`
}

// Config represents the complete application configuration
type Config struct {
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Extraction   ExtractionConfig   `mapstructure:"extraction"`
	Validation   ValidationConfig   `mapstructure:"validation"`
	Store        StoreConfig        `mapstructure:"store"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ParseDuration parses a duration string, falling back when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
