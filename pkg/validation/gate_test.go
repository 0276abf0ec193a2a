package validation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"media-pipeline-go/pkg/capability"
	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/job"
)

type stubProber struct {
	info  *capability.MediaInfo
	err   error
	calls int
}

func (s *stubProber) Probe(ctx context.Context, key string) (*capability.MediaInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	info := *s.info
	return &info, nil
}

func testConfig() config.ValidationConfig {
	return config.ValidationConfig{
		MinQualityScore:   0.7,
		Weights:           config.ValidationWeights{Adherence: 0.4, Duration: 0.3, Safety: 0.3},
		NeutralAdherence:  0.8,
		DurationTolerance: 0.1,
		UnsafeKeywords:    []string{"violence", "sangue", "hate", "drug"},
		UnsafeEmotions:    []string{"violence", "hate"},
	}
}

func goodMedia(seconds float64) capability.MediaInfo {
	return capability.MediaInfo{
		Duration:  time.Duration(seconds * float64(time.Second)),
		Width:     1280,
		Height:    720,
		SizeBytes: 50000,
		Extension: ".mp4",
		HasVideo:  true,
	}
}

// input builds n sequences with images of the given adherence and 4s narrations
func input(n int, adherence float64) Input {
	in := Input{
		Video:  job.Artifact{Stage: job.StageVideo, Index: job.JobLevel, Ref: "jobs/j/video/final.mp4"},
		Media:  goodMedia(float64(n) * 4),
		Images: map[int]job.Artifact{},
		Audio:  map[int]job.Artifact{},
	}
	for i := 0; i < n; i++ {
		a := adherence
		in.Sequences = append(in.Sequences, job.Sequence{Index: i, Text: "Marco walked along the quiet river.", Emotions: []string{"calm"}})
		in.Images[i] = job.Artifact{Stage: job.StageImage, Index: i, Ref: "img", Adherence: &a}
		in.Audio[i] = job.Artifact{Stage: job.StageAudio, Index: i, Ref: "aud", DurationSeconds: 4}
	}
	return in
}

func TestEvaluateAcceptsGoodOutput(t *testing.T) {
	gate := New(testConfig(), nil, zap.NewNop())

	result := gate.Evaluate(input(3, 0.55))
	assert.Equal(t, 0.82, result.QualityScore)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.Warnings)
}

func TestEvaluateRejectsLowScoreWithoutIssues(t *testing.T) {
	gate := New(testConfig(), nil, zap.NewNop())

	result := gate.Evaluate(input(3, 0.125))
	assert.Equal(t, 0.65, result.QualityScore)
	assert.Empty(t, result.Issues)
	assert.False(t, result.IsValid)
}

func TestEvaluateIsPure(t *testing.T) {
	gate := New(testConfig(), nil, zap.NewNop())
	in := input(4, 0.7)
	in.Media.Duration = 13 * time.Second

	first := gate.Evaluate(in)
	second := gate.Evaluate(in)
	assert.Equal(t, first, second)
}

func TestDurationScoreSumsInSequenceOrder(t *testing.T) {
	gate := New(testConfig(), nil, zap.NewNop())
	in := input(16, 0.7)
	for i := range in.Sequences {
		a := in.Audio[i]
		a.DurationSeconds = 0.1 * float64(i+1) / 3
		in.Audio[i] = a
	}
	in.Audio[99] = job.Artifact{Stage: job.StageAudio, Index: 99, DurationSeconds: 1000}
	in.Media.Duration = 3 * time.Second

	want, wantWarning := gate.durationScore(in)
	for i := 0; i < 50; i++ {
		got, warning := gate.durationScore(in)
		require.Equal(t, math.Float64bits(want), math.Float64bits(got))
		require.Equal(t, wantWarning, warning)
	}
	// audio without a sequence is not narration
	assert.InDelta(t, 3/(13.6/3), want, 1e-9)
}

func TestEvaluateNeutralAndMissingAdherence(t *testing.T) {
	gate := New(testConfig(), nil, zap.NewNop())

	in := input(2, 0)
	in.Images[0] = job.Artifact{Stage: job.StageImage, Index: 0, Ref: "img"}
	delete(in.Images, 1)

	result := gate.Evaluate(in)
	// (0.8 + 0) / 2 adherence, full duration and safety
	assert.Equal(t, 0.76, result.QualityScore)
	assert.Contains(t, result.Issues, "Missing image for sequence 1")
	assert.False(t, result.IsValid)
}

func TestEvaluateDurationMismatch(t *testing.T) {
	gate := New(testConfig(), nil, zap.NewNop())

	in := input(2, 1)
	in.Media.Duration = 6 * time.Second

	result := gate.Evaluate(in)
	// narration 8s, video 6s: duration component 0.75
	assert.Equal(t, 0.925, result.QualityScore)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "differs from narration")
	assert.True(t, result.IsValid)
}

func TestEvaluateSafety(t *testing.T) {
	gate := New(testConfig(), nil, zap.NewNop())

	in := input(4, 1)
	in.Sequences[1].Text = "Il sangue scorreva."
	in.Sequences[2].Emotions = []string{"hate"}
	in.Sequences[3].Text = "Whatever happened, the drugstore stayed open."

	result := gate.Evaluate(in)
	assert.Contains(t, result.Issues, "Potentially unsafe content in sequence 1: 'sangue'")
	assert.Contains(t, result.Issues, "Inappropriate emotional content in sequence 2")
	// "whatever" does not start with "hate" but "drugstore" starts with "drug"
	assert.Contains(t, result.Issues, "Potentially unsafe content in sequence 3: 'drug'")
	assert.Len(t, result.Issues, 3)
	assert.False(t, result.IsValid)
}

func TestEvaluateStructuralChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		issue  string
	}{
		{
			name:   "Too short",
			mutate: func(in *Input) { in.Media.Duration = 500 * time.Millisecond },
			issue:  "Video duration too short: 0.50s",
		},
		{
			name:   "Low resolution",
			mutate: func(in *Input) { in.Media.Width, in.Media.Height = 320, 240 },
			issue:  "Video resolution too low: 320x240",
		},
		{
			name:   "Tiny file",
			mutate: func(in *Input) { in.Media.SizeBytes = 10 },
			issue:  "Video file too small, likely corrupted",
		},
		{
			name:   "Unsupported container",
			mutate: func(in *Input) { in.Media.Extension = ".webm" },
			issue:  `Invalid video file format: ".webm"`,
		},
		{
			name:   "No video stream",
			mutate: func(in *Input) { in.Media.HasVideo = false },
			issue:  "Video has no video stream",
		},
		{
			name:   "No video artifact",
			mutate: func(in *Input) { in.Video = job.Artifact{} },
			issue:  "Video file not found",
		},
		{
			name:   "Missing narration",
			mutate: func(in *Input) { delete(in.Audio, 0) },
			issue:  "Missing narration for sequence 0",
		},
	}

	gate := New(testConfig(), nil, zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input(2, 1)
			tt.mutate(&in)

			result := gate.Evaluate(in)
			assert.Contains(t, result.Issues, tt.issue)
			assert.False(t, result.IsValid)
		})
	}
}

func TestEvaluateProcessingTimeWarning(t *testing.T) {
	gate := New(testConfig(), nil, zap.NewNop())

	in := input(1, 1)
	in.Elapsed = 10 * time.Minute

	result := gate.Evaluate(in)
	assert.Contains(t, result.Warnings, "Processing time exceeded expected duration: 600.0s")
	assert.True(t, result.IsValid)
}

func TestValidateProbesVideo(t *testing.T) {
	in := input(3, 0.55)
	media := in.Media
	prober := &stubProber{info: &media}
	gate := New(testConfig(), prober, zap.NewNop())

	artifacts := map[job.Stage]map[int]job.Artifact{
		job.StageImage: in.Images,
		job.StageAudio: in.Audio,
	}
	result, err := gate.Validate(context.Background(), in.Video, in.Sequences, artifacts, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, prober.calls)
	assert.Equal(t, 0.82, result.QualityScore)
	assert.True(t, result.IsValid)
}

func TestValidateUnavailable(t *testing.T) {
	gate := New(testConfig(), &stubProber{err: errors.New("ffprobe: exit status 1")}, zap.NewNop())
	in := input(1, 1)

	result, err := gate.Validate(context.Background(), in.Video, in.Sequences, nil, 0)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, job.ErrValidationUnavailable)
	assert.Equal(t, job.ClassTransient, job.ClassOf(err))
}

func TestReport(t *testing.T) {
	passed := Report(job.NewValidationResult(0.9, nil, nil, 0.7, 1500*time.Millisecond))
	assert.Contains(t, passed, "Status: PASSED")
	assert.Contains(t, passed, "Quality Score: 0.90/1.00")
	assert.Contains(t, passed, "Processing Time: 1.50s")
	assert.Contains(t, passed, "No issues found")

	failed := Report(job.NewValidationResult(0.5, []string{"Video file not found"}, []string{"slow"}, 0.7, 0))
	assert.Contains(t, failed, "Status: FAILED")
	assert.Contains(t, failed, "  - Video file not found")
	assert.Contains(t, failed, "WARNINGS:\n  - slow")
}
