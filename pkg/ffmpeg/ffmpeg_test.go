package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleProbe = `{
  "streams": [
    {"codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720, "avg_frame_rate": "24/1"},
    {"codec_name": "aac", "codec_type": "audio", "sample_rate": "44100"}
  ],
  "format": {"filename": "final.mp4", "format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.500000", "size": "204800", "bit_rate": "131072"}
}`

type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

func TestParseProbeOutput(t *testing.T) {
	info, err := ParseProbeOutput([]byte(sampleProbe))
	require.NoError(t, err)

	assert.Equal(t, 12500*time.Millisecond, info.Duration)
	assert.Equal(t, int64(204800), info.Size)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.Equal(t, 24.0, info.FrameRate)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.Equal(t, 44100, info.SampleRate)
	assert.True(t, info.HasVideo())

	_, err = ParseProbeOutput([]byte("not json"))
	assert.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, parseFrameRate("25"))
	assert.Equal(t, 0.0, parseFrameRate("0/0"))
	assert.Equal(t, 0.0, parseFrameRate(""))
}

func TestProberUsesRunner(t *testing.T) {
	runner := &fakeRunner{output: []byte(sampleProbe)}
	p := NewProber("/opt/ffprobe", time.Second, runner, zap.NewNop())

	info, err := p.Probe(context.Background(), "/tmp/final.mp4")
	require.NoError(t, err)
	assert.Equal(t, "final.mp4", info.Filename)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "/opt/ffprobe", runner.calls[0][0])
	assert.Equal(t, "/tmp/final.mp4", runner.calls[0][len(runner.calls[0])-1])

	failing := NewProber("", time.Second, &fakeRunner{err: errors.New("exit status 1")}, zap.NewNop())
	_, err = failing.Probe(context.Background(), "/tmp/x.mp4")
	assert.Error(t, err)
}

func TestComposeRunsSegmentsThenConcat(t *testing.T) {
	runner := &fakeRunner{}
	c := NewComposer("ffmpeg", time.Second, runner, zap.NewNop())
	workDir := t.TempDir()

	segments := []Segment{
		{ImagePath: "a.png", AudioPath: "a.mp3"},
		{ImagePath: "b.png", AudioPath: "b.mp3"},
	}
	err := c.Compose(context.Background(), segments, workDir, filepath.Join(workDir, "final.mp4"), ComposeOptions{})
	require.NoError(t, err)

	require.Len(t, runner.calls, 3)
	assert.Contains(t, runner.calls[0], "a.png")
	assert.Contains(t, runner.calls[1], "b.mp3")
	assert.Contains(t, runner.calls[2], "concat")

	list, err := os.ReadFile(filepath.Join(workDir, "concat.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(list), "clip_000.mp4")
	assert.Contains(t, string(list), "clip_001.mp4")

	assert.Error(t, c.Compose(context.Background(), nil, workDir, "out.mp4", ComposeOptions{}))
}

func TestSegmentArgs(t *testing.T) {
	args := SegmentArgs(Segment{ImagePath: "i.png", AudioPath: "n.mp3"}, "out.mp4", ComposeOptions{Width: 640, Height: 480, FPS: 30})
	assert.Contains(t, args, "-shortest")
	assert.Contains(t, args, "30")
	assert.Equal(t, "out.mp4", args[len(args)-1])
	assert.Contains(t, args, "scale=640:480:force_original_aspect_ratio=decrease,pad=640:480:(ow-iw)/2:(oh-ih)/2,format=yuv420p")
}

func TestConcatListEscapesQuotes(t *testing.T) {
	assert.Equal(t, "file '/tmp/it'\\''s.mp4'\n", ConcatList([]string{"/tmp/it's.mp4"}))
}
