package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Segment is one still image shown for the length of its narration
type Segment struct {
	ImagePath string
	AudioPath string
}

// ComposeOptions controls the output encoding
type ComposeOptions struct {
	Width  int
	Height int
	FPS    int
}

// Composer builds slideshow videos with ffmpeg
type Composer struct {
	ffmpegPath string
	timeout    time.Duration
	runner     Runner
	logger     *zap.Logger
}

// NewComposer creates a composer. An empty path means ffmpeg from PATH.
func NewComposer(ffmpegPath string, timeout time.Duration, runner Runner, logger *zap.Logger) *Composer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Composer{
		ffmpegPath: ffmpegPath,
		timeout:    timeout,
		runner:     runner,
		logger:     logger,
	}
}

// Compose renders one clip per segment inside workDir, then concatenates them into outputPath
func (c *Composer) Compose(ctx context.Context, segments []Segment, workDir, outputPath string, opts ComposeOptions) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments to compose")
	}
	opts = withDefaults(opts)

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	clips := make([]string, len(segments))
	for i, seg := range segments {
		clips[i] = filepath.Join(workDir, fmt.Sprintf("clip_%03d.mp4", i))
		if _, err := c.runner.Run(timeoutCtx, c.ffmpegPath, SegmentArgs(seg, clips[i], opts)...); err != nil {
			return fmt.Errorf("render segment %d: %w", i, err)
		}
		c.logger.Debug("Rendered segment", zap.Int("index", i), zap.String("clip", clips[i]))
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(ConcatList(clips)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	if _, err := c.runner.Run(timeoutCtx, c.ffmpegPath, ConcatArgs(listPath, outputPath)...); err != nil {
		return fmt.Errorf("concatenate segments: %w", err)
	}

	c.logger.Info("Composed video",
		zap.Int("segments", len(segments)),
		zap.String("output", outputPath))

	return nil
}

func withDefaults(opts ComposeOptions) ComposeOptions {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if opts.FPS <= 0 {
		opts.FPS = 24
	}
	return opts
}

// SegmentArgs renders a looped still image over its narration, letterboxed to the output size
func SegmentArgs(seg Segment, output string, opts ComposeOptions) []string {
	opts = withDefaults(opts)
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,format=yuv420p",
		opts.Width, opts.Height, opts.Width, opts.Height)

	return []string{
		"-y",
		"-loop", "1",
		"-i", seg.ImagePath,
		"-i", seg.AudioPath,
		"-vf", scale,
		"-r", fmt.Sprint(opts.FPS),
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		output,
	}
}

// ConcatList renders an ffmpeg concat demuxer list
func ConcatList(clips []string) string {
	var b strings.Builder
	for _, clip := range clips {
		// single quotes inside paths are closed, escaped and reopened
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(clip, "'", `'\''`))
	}
	return b.String()
}

// ConcatArgs joins clips listed in listPath without re-encoding
func ConcatArgs(listPath, output string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	}
}
