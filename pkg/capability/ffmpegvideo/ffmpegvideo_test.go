package ffmpegvideo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"media-pipeline-go/pkg/capability"
	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/ffmpeg"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/storage"
)

const probeJSON = `{
  "streams": [{"codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720}],
  "format": {"duration": "9.000000", "size": "4096"}
}`

// scriptedRunner writes a placeholder for the output file of ffmpeg calls
// and answers ffprobe calls with canned JSON.
type scriptedRunner struct {
	mu        sync.Mutex
	calls     []string
	ffmpegErr error
	probeErr  error
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()

	if strings.Contains(name, "ffprobe") {
		if r.probeErr != nil {
			return nil, r.probeErr
		}
		return []byte(probeJSON), nil
	}
	if r.ffmpegErr != nil {
		return nil, r.ffmpegErr
	}
	output := args[len(args)-1]
	return nil, os.WriteFile(output, bytes.Repeat([]byte{0}, 4096), 0o644)
}

func setup(t *testing.T, runner *scriptedRunner) (*Composer, *Prober, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(config.StorageConfig{Bucket: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	ffProber := ffmpeg.NewProber("ffprobe", time.Second, runner, zap.NewNop())
	ffComposer := ffmpeg.NewComposer("ffmpeg", time.Second, runner, zap.NewNop())
	work := t.TempDir()

	return NewComposer(ffComposer, ffProber, store, work, ffmpeg.ComposeOptions{}, zap.NewNop()),
		NewProber(ffProber, store, work), store
}

func putClips(t *testing.T, store storage.Storage, jobID string, n int) []capability.Clip {
	t.Helper()
	clips := make([]capability.Clip, n)
	for i := 0; i < n; i++ {
		imageKey := storage.ArtifactKey(jobID, "images", i, ".png")
		audioKey := storage.ArtifactKey(jobID, "audio", i, ".mp3")
		_, err := store.PutObject(context.Background(), imageKey, strings.NewReader("png"))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), audioKey, strings.NewReader("mp3"))
		require.NoError(t, err)
		clips[i] = capability.Clip{Index: i, ImageKey: imageKey, AudioKey: audioKey, DurationSeconds: 3}
	}
	return clips
}

func TestComposeUploadsFinalVideo(t *testing.T) {
	runner := &scriptedRunner{}
	composer, _, store := setup(t, runner)

	key := storage.JobArtifactKey("j1", "video", "final.mp4")
	res, err := composer.Compose(context.Background(), capability.VideoRequest{
		JobID: "j1", Key: key, Clips: putClips(t, store, "j1", 2),
	})
	require.NoError(t, err)

	assert.Equal(t, key, res.Key)
	assert.Equal(t, int64(4096), res.SizeBytes)
	assert.Equal(t, 9.0, res.DurationSeconds)
	// two segments, one concat, one probe
	assert.Len(t, runner.calls, 4)

	_, err = store.GetObjectMetadata(context.Background(), key)
	assert.NoError(t, err)
}

func TestComposeFallsBackToClipDurations(t *testing.T) {
	runner := &scriptedRunner{probeErr: errors.New("exit status 1")}
	composer, _, store := setup(t, runner)

	res, err := composer.Compose(context.Background(), capability.VideoRequest{
		JobID: "j2", Key: storage.JobArtifactKey("j2", "video", "final.mp4"), Clips: putClips(t, store, "j2", 3),
	})
	require.NoError(t, err)
	assert.Equal(t, 9.0, res.DurationSeconds)
}

func TestComposeClassifiesFailures(t *testing.T) {
	t.Run("No clips", func(t *testing.T) {
		composer, _, _ := setup(t, &scriptedRunner{})
		_, err := composer.Compose(context.Background(), capability.VideoRequest{JobID: "j", Key: "jobs/j/video/final.mp4"})
		assert.Equal(t, job.ClassPermanent, job.ClassOf(err))
	})

	t.Run("Missing clip", func(t *testing.T) {
		composer, _, _ := setup(t, &scriptedRunner{})
		_, err := composer.Compose(context.Background(), capability.VideoRequest{
			JobID: "j", Key: "jobs/j/video/final.mp4",
			Clips: []capability.Clip{{ImageKey: "jobs/j/images/seq_000.png", AudioKey: "jobs/j/audio/seq_000.mp3"}},
		})
		require.Error(t, err)
		assert.Equal(t, job.ClassPermanent, job.ClassOf(err))
	})

	t.Run("Encoder error", func(t *testing.T) {
		runner := &scriptedRunner{ffmpegErr: errors.New("ffmpeg failed: exit status 1")}
		composer, _, store := setup(t, runner)
		_, err := composer.Compose(context.Background(), capability.VideoRequest{
			JobID: "j", Key: "jobs/j/video/final.mp4", Clips: putClips(t, store, "j", 1),
		})
		assert.Equal(t, job.ClassPermanent, job.ClassOf(err))
	})

	t.Run("Encoder timeout", func(t *testing.T) {
		runner := &scriptedRunner{ffmpegErr: context.DeadlineExceeded}
		composer, _, store := setup(t, runner)
		_, err := composer.Compose(context.Background(), capability.VideoRequest{
			JobID: "j", Key: "jobs/j/video/final.mp4", Clips: putClips(t, store, "j", 1),
		})
		assert.Equal(t, job.ClassTransient, job.ClassOf(err))
	})
}

func TestProberReadsStoredArtifact(t *testing.T) {
	_, prober, store := setup(t, &scriptedRunner{})
	key := storage.JobArtifactKey("j", "video", "final.MP4")
	_, err := store.PutObject(context.Background(), key, strings.NewReader("video"))
	require.NoError(t, err)

	info, err := prober.Probe(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, info.Duration)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, int64(4096), info.SizeBytes)
	assert.Equal(t, ".mp4", info.Extension)
	assert.True(t, info.HasVideo)

	_, err = prober.Probe(context.Background(), "jobs/j/video/missing.mp4")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}
