// Package validation implements the quality gate run on every composed video.
//
// The gate probes the stored video once and then scores it with Evaluate, a
// pure function of the probe result, the sequences and the stage artifacts.
// The score is a weighted mean of three components:
//
//   - prompt adherence: mean per-sequence image adherence; missing images
//     score 0 and images without a reported adherence score NeutralAdherence
//   - duration alignment: 1 - relative error between the video duration and
//     the summed narration durations
//   - content safety: share of sequences free of unsafe keywords and emotions
//
// Structural problems (missing artifacts, unsafe content, a video that is too
// short, too small, too low resolution or in an unsupported container) are
// blocking issues. The acceptance rule itself lives in job.NewValidationResult.
package validation

import (
	"context"
	"fmt"
	"math"
	"path"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"media-pipeline-go/pkg/capability"
	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/utils"
)

// Defaults applied when the configuration leaves a threshold at zero
const (
	DefaultMinVideoSeconds   = 1.0
	DefaultMinWidth          = 480
	DefaultMinHeight         = 360
	DefaultMinVideoBytes     = 1000
	DefaultMaxProcessingTime = 300 * time.Second
)

// Input is everything Evaluate looks at
type Input struct {
	Video     job.Artifact
	Media     capability.MediaInfo
	Sequences []job.Sequence
	Images    map[int]job.Artifact
	Audio     map[int]job.Artifact
	// Elapsed is the pipeline processing time up to validation
	Elapsed time.Duration
}

// Gate scores composed videos
type Gate struct {
	cfg           config.ValidationConfig
	maxProcessing time.Duration
	prober        capability.Prober
	logger        *zap.Logger
}

// New creates a gate. prober is used by Validate only.
func New(cfg config.ValidationConfig, prober capability.Prober, logger *zap.Logger) *Gate {
	if cfg.MinVideoSeconds <= 0 {
		cfg.MinVideoSeconds = DefaultMinVideoSeconds
	}
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = DefaultMinWidth
	}
	if cfg.MinHeight <= 0 {
		cfg.MinHeight = DefaultMinHeight
	}
	if cfg.MinVideoBytes <= 0 {
		cfg.MinVideoBytes = DefaultMinVideoBytes
	}
	if len(cfg.VideoFormats) == 0 {
		cfg.VideoFormats = []string{".mp4", ".avi", ".mov"}
	}
	if cfg.Weights.Adherence+cfg.Weights.Duration+cfg.Weights.Safety <= 0 {
		cfg.Weights = config.ValidationWeights{Adherence: 0.4, Duration: 0.3, Safety: 0.3}
	}

	lowered := make([]string, len(cfg.UnsafeKeywords))
	for i, kw := range cfg.UnsafeKeywords {
		lowered[i] = strings.ToLower(kw)
	}
	cfg.UnsafeKeywords = lowered

	return &Gate{
		cfg:           cfg,
		maxProcessing: config.ParseDuration(cfg.MaxProcessingTime, DefaultMaxProcessingTime),
		prober:        prober,
		logger:        logger,
	}
}

// MinQualityScore returns the acceptance threshold
func (g *Gate) MinQualityScore() float64 {
	return g.cfg.MinQualityScore
}

// Validate probes the video and evaluates it. A probe failure returns
// job.ErrValidationUnavailable and no result.
func (g *Gate) Validate(ctx context.Context, video job.Artifact, sequences []job.Sequence,
	artifacts map[job.Stage]map[int]job.Artifact, elapsed time.Duration) (*job.ValidationResult, error) {
	start := time.Now()

	in := Input{
		Video:     video,
		Sequences: sequences,
		Images:    artifacts[job.StageImage],
		Audio:     artifacts[job.StageAudio],
		Elapsed:   elapsed,
	}

	if video.Ref != "" {
		if g.prober == nil {
			return nil, fmt.Errorf("%w: no prober configured", job.ErrValidationUnavailable)
		}
		media, err := g.prober.Probe(ctx, video.Ref)
		if err != nil {
			return nil, fmt.Errorf("%w: probe %s: %v", job.ErrValidationUnavailable, video.Ref, err)
		}
		in.Media = *media
	}

	result := g.Evaluate(in)
	result.ProcessingTime = time.Since(start)

	g.logger.Info("Validation completed",
		zap.Bool("is_valid", result.IsValid),
		zap.Float64("quality_score", result.QualityScore),
		zap.Int("issues", len(result.Issues)),
		zap.Int("warnings", len(result.Warnings)))

	return result, nil
}

// Evaluate scores in. It has no side effects and depends only on in and the
// gate configuration.
func (g *Gate) Evaluate(in Input) *job.ValidationResult {
	var issues, warnings []string

	issues = append(issues, g.checkArtifacts(in)...)
	issues = append(issues, g.checkVideo(in)...)

	safety, safetyIssues := g.safetyScore(in.Sequences)
	issues = append(issues, safetyIssues...)

	duration, durationWarning := g.durationScore(in)
	if durationWarning != "" {
		warnings = append(warnings, durationWarning)
	}

	if in.Elapsed > g.maxProcessing {
		warnings = append(warnings, fmt.Sprintf("Processing time exceeded expected duration: %.1fs", in.Elapsed.Seconds()))
	}

	w := g.cfg.Weights
	score := (w.Adherence*g.adherenceScore(in) + w.Duration*duration + w.Safety*safety) /
		(w.Adherence + w.Duration + w.Safety)
	score = math.Round(score*1e4) / 1e4

	return job.NewValidationResult(score, issues, warnings, g.cfg.MinQualityScore, 0)
}

func (g *Gate) checkArtifacts(in Input) []string {
	var issues []string
	for _, seq := range in.Sequences {
		if a, ok := in.Images[seq.Index]; !ok || a.Ref == "" {
			issues = append(issues, fmt.Sprintf("Missing image for sequence %d", seq.Index))
		}
		if a, ok := in.Audio[seq.Index]; !ok || a.Ref == "" {
			issues = append(issues, fmt.Sprintf("Missing narration for sequence %d", seq.Index))
		}
	}
	return issues
}

func (g *Gate) checkVideo(in Input) []string {
	if in.Video.Ref == "" {
		return []string{"Video file not found"}
	}

	var issues []string
	m := in.Media

	size := m.SizeBytes
	if size == 0 {
		size = in.Video.SizeBytes
	}
	if size < g.cfg.MinVideoBytes {
		issues = append(issues, "Video file too small, likely corrupted")
	}

	ext := m.Extension
	if ext == "" {
		ext = strings.ToLower(path.Ext(in.Video.Ref))
	}
	if !utils.ValidateExtension(ext, g.cfg.VideoFormats) {
		issues = append(issues, fmt.Sprintf("Invalid video file format: %q", ext))
	}

	if !m.HasVideo {
		issues = append(issues, "Video has no video stream")
		return issues
	}
	if m.Duration.Seconds() < g.cfg.MinVideoSeconds {
		issues = append(issues, fmt.Sprintf("Video duration too short: %.2fs", m.Duration.Seconds()))
	}
	if m.Width < g.cfg.MinWidth || m.Height < g.cfg.MinHeight {
		issues = append(issues, fmt.Sprintf("Video resolution too low: %dx%d", m.Width, m.Height))
	}
	return issues
}

func (g *Gate) adherenceScore(in Input) float64 {
	if len(in.Sequences) == 0 {
		return g.cfg.NeutralAdherence
	}

	total := 0.0
	for _, seq := range in.Sequences {
		a, ok := in.Images[seq.Index]
		switch {
		case !ok || a.Ref == "":
		case a.Adherence == nil:
			total += g.cfg.NeutralAdherence
		default:
			total += clamp01(*a.Adherence)
		}
	}
	return total / float64(len(in.Sequences))
}

func (g *Gate) durationScore(in Input) (float64, string) {
	narration := 0.0
	for _, seq := range in.Sequences {
		if a, ok := in.Audio[seq.Index]; ok {
			narration += a.DurationSeconds
		}
	}
	video := in.Media.Duration.Seconds()
	if video <= 0 {
		video = in.Video.DurationSeconds
	}
	if narration <= 0 {
		// nothing to align against
		return 1, ""
	}

	relErr := math.Abs(video-narration) / narration
	var warning string
	if relErr > g.cfg.DurationTolerance {
		warning = fmt.Sprintf("Video duration %.1fs differs from narration %.1fs by %.0f%%",
			video, narration, relErr*100)
	}
	return clamp01(1 - relErr), warning
}

func (g *Gate) safetyScore(sequences []job.Sequence) (float64, []string) {
	if len(sequences) == 0 {
		return 1, nil
	}

	var issues []string
	safe := 0
	for _, seq := range sequences {
		clean := true
		if kw := g.unsafeKeyword(seq.Text + " " + seq.Summary); kw != "" {
			issues = append(issues, fmt.Sprintf("Potentially unsafe content in sequence %d: '%s'", seq.Index, kw))
			clean = false
		}
		for _, emotion := range seq.Emotions {
			if containsString(g.cfg.UnsafeEmotions, emotion) {
				issues = append(issues, fmt.Sprintf("Inappropriate emotional content in sequence %d", seq.Index))
				clean = false
				break
			}
		}
		if clean {
			safe++
		}
	}
	return float64(safe) / float64(len(sequences)), issues
}

// unsafeKeyword returns the first keyword that starts a word of text
func (g *Gate) unsafeKeyword(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, kw := range g.cfg.UnsafeKeywords {
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				return kw
			}
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
