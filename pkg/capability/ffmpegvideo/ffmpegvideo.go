// Package ffmpegvideo composes and probes pipeline videos locally with ffmpeg,
// moving artifacts in and out of storage around each call.
package ffmpegvideo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"media-pipeline-go/pkg/capability"
	"media-pipeline-go/pkg/ffmpeg"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/storage"
	"media-pipeline-go/pkg/utils"
)

// Composer implements capability.VideoComposer as a still-image slideshow
type Composer struct {
	composer *ffmpeg.Composer
	prober   *ffmpeg.Prober
	store    storage.Storage
	workDir  string
	options  ffmpeg.ComposeOptions
	logger   *zap.Logger
}

// NewComposer creates a local composer. workDir empty means the system temp directory.
func NewComposer(composer *ffmpeg.Composer, prober *ffmpeg.Prober, store storage.Storage,
	workDir string, options ffmpeg.ComposeOptions, logger *zap.Logger) *Composer {
	return &Composer{
		composer: composer,
		prober:   prober,
		store:    store,
		workDir:  workDir,
		options:  options,
		logger:   logger,
	}
}

// Compose implements capability.VideoComposer
func (c *Composer) Compose(ctx context.Context, req capability.VideoRequest) (*capability.VideoResult, error) {
	if len(req.Clips) == 0 {
		return nil, job.Permanent("compose", errors.New("no clips to compose"))
	}

	dir, err := os.MkdirTemp(c.workDir, "compose-"+utils.SanitizeFilename(req.JobID)+"-")
	if err != nil {
		return nil, job.Transient("compose", err)
	}
	defer os.RemoveAll(dir)

	segments := make([]ffmpeg.Segment, len(req.Clips))
	for i, clip := range req.Clips {
		imagePath := filepath.Join(dir, fmt.Sprintf("image_%03d%s", clip.Index, path.Ext(clip.ImageKey)))
		audioPath := filepath.Join(dir, fmt.Sprintf("audio_%03d%s", clip.Index, path.Ext(clip.AudioKey)))

		if err := c.fetch(ctx, clip.ImageKey, imagePath); err != nil {
			return nil, err
		}
		if err := c.fetch(ctx, clip.AudioKey, audioPath); err != nil {
			return nil, err
		}
		segments[i] = ffmpeg.Segment{ImagePath: imagePath, AudioPath: audioPath}
	}

	output := filepath.Join(dir, "final"+path.Ext(req.Key))
	if err := c.composer.Compose(ctx, segments, dir, output, c.options); err != nil {
		// ffmpeg failures on inputs we just fetched are rarely fixed by retrying
		if utils.IsTimeoutError(err) {
			return nil, job.Transient("compose", err)
		}
		return nil, job.Permanent("compose", err)
	}

	obj, err := c.store.UploadObject(ctx, output, req.Key)
	if err != nil {
		return nil, job.Transient("compose", utils.WrapError(err, "store video"))
	}

	result := &capability.VideoResult{Key: obj.Key, SizeBytes: obj.Size}
	if info, err := c.prober.Probe(ctx, output); err == nil {
		result.DurationSeconds = info.Duration.Seconds()
	} else {
		c.logger.Warn("Could not probe composed video", zap.String("job_id", req.JobID), zap.Error(err))
		for _, clip := range req.Clips {
			result.DurationSeconds += clip.DurationSeconds
		}
	}

	return result, nil
}

func (c *Composer) fetch(ctx context.Context, key, localPath string) error {
	if err := c.store.DownloadObject(ctx, key, localPath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return job.Permanent("compose", err)
		}
		return job.Transient("compose", err)
	}
	return nil
}

// Prober implements capability.Prober with ffprobe
type Prober struct {
	prober  *ffmpeg.Prober
	store   storage.Storage
	workDir string
}

// NewProber creates a storage-backed prober
func NewProber(prober *ffmpeg.Prober, store storage.Storage, workDir string) *Prober {
	return &Prober{prober: prober, store: store, workDir: workDir}
}

// Probe downloads the artifact and inspects it
func (p *Prober) Probe(ctx context.Context, key string) (*capability.MediaInfo, error) {
	dir, err := os.MkdirTemp(p.workDir, "probe-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "artifact"+path.Ext(key))
	if err := p.store.DownloadObject(ctx, key, local); err != nil {
		return nil, err
	}

	info, err := p.prober.Probe(ctx, local)
	if err != nil {
		return nil, err
	}

	size := info.Size
	if size == 0 {
		if stat, statErr := os.Stat(local); statErr == nil {
			size = stat.Size()
		}
	}

	return &capability.MediaInfo{
		Duration:  info.Duration,
		Width:     info.Width,
		Height:    info.Height,
		SizeBytes: size,
		Extension: strings.ToLower(path.Ext(key)),
		HasVideo:  info.HasVideo(),
	}, nil
}
