// Package capability defines the narrow contracts through which the pipeline
// invokes external generation services, and the per-mode strategy table that
// binds concrete backends to a job when it is submitted.
//
// Backends report failures as job.CapabilityError values (transient,
// permanent or capacity exceeded); anything else is classified by job.ClassOf.
package capability

import (
	"context"
	"time"
)

// ImageRequest asks for one illustration of a sequence
type ImageRequest struct {
	JobID  string
	Index  int
	Prompt string
	Style  string
	Width  int
	Height int
	// Key is where the backend must store the image
	Key string
}

// ImageResult references a stored image
type ImageResult struct {
	Key       string
	SizeBytes int64
	// Adherence is the backend's own prompt adherence estimate in [0,1], when it reports one
	Adherence *float64
}

// ImageGenerator synthesizes images
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// SpeechRequest asks for the narration of a sequence
type SpeechRequest struct {
	JobID    string
	Index    int
	Text     string
	Language string
	Voice    string
	Key      string
}

// SpeechResult references a stored narration clip
type SpeechResult struct {
	Key             string
	SizeBytes       int64
	DurationSeconds float64
}

// SpeechSynthesizer converts text to speech
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
}

// Clip is one sequence's image and narration, in sequence order
type Clip struct {
	Index           int
	ImageKey        string
	AudioKey        string
	DurationSeconds float64
}

// VideoRequest asks for the final composition
type VideoRequest struct {
	JobID string
	Title string
	Clips []Clip
	Key   string
}

// VideoResult references the stored final video
type VideoResult struct {
	Key             string
	SizeBytes       int64
	DurationSeconds float64
}

// VideoComposer muxes clips into the final video
type VideoComposer interface {
	Compose(ctx context.Context, req VideoRequest) (*VideoResult, error)
}

// MediaInfo describes a stored media artifact
type MediaInfo struct {
	Duration  time.Duration
	Width     int
	Height    int
	SizeBytes int64
	// Extension is the lowercase file extension including the dot
	Extension string
	HasVideo  bool
}

// Prober inspects stored artifacts
type Prober interface {
	Probe(ctx context.Context, key string) (*MediaInfo, error)
}
