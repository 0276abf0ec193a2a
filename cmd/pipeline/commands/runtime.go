package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"media-pipeline-go/internal/orchestrator"
	"media-pipeline-go/pkg/capability"
	"media-pipeline-go/pkg/capability/ffmpegvideo"
	"media-pipeline-go/pkg/capability/httpbackend"
	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/ffmpeg"
	"media-pipeline-go/pkg/httpclient"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/jobstore"
	"media-pipeline-go/pkg/storage"
	"media-pipeline-go/pkg/utils"
	"media-pipeline-go/pkg/validation"
)

type contextKey struct{}

// app is what every command receives from Setup
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

// Setup loads the configuration and logger before any command runs
func Setup(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetString("log-file")
	if logFile == "" {
		logFile = cfg.Logging.File
	}

	logger, err := config.SetupLogging(verbose || cfg.Logging.Verbose, logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, &app{cfg: cfg, logger: logger}))
	return nil
}

func appFrom(cmd *cobra.Command) (*app, error) {
	a, ok := cmd.Context().Value(contextKey{}).(*app)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	return a, nil
}

// runtime is a fully wired orchestrator and the resources behind it
type runtime struct {
	orch    *orchestrator.Orchestrator
	store   jobstore.Store
	storage storage.Storage
	gate    *validation.Gate
	client  *httpclient.HTTPClient
	logger  *zap.Logger
	timeout time.Duration
}

// opener builds the runtime a command works against
type opener func(ctx context.Context, a *app, requireModes bool) (*runtime, error)

// localMedia returns the ffmpeg backed prober and composer over st
func localMedia(cfg *config.Config, st storage.Storage, logger *zap.Logger) (capability.Prober, capability.VideoComposer) {
	ff := cfg.Capabilities.FFmpeg
	ffprober := ffmpeg.NewProber(ff.FFprobePath, cfg.Pipeline.CallTimeout, nil, logger)
	prober := ffmpegvideo.NewProber(ffprober, st, ff.WorkDir)
	composer := ffmpegvideo.NewComposer(
		ffmpeg.NewComposer(ff.FFmpegPath, cfg.Pipeline.CallTimeout, nil, logger),
		ffprober, st, ff.WorkDir,
		ffmpeg.ComposeOptions{Width: ff.Width, Height: ff.Height, FPS: ff.FPS},
		logger)
	return prober, composer
}

// newRuntime wires storage, the job store, the capability registry and the
// quality gate. requireModes fails when no mode has generation backends.
func newRuntime(ctx context.Context, a *app, requireModes bool) (*runtime, error) {
	return assembleRuntime(ctx, a, requireModes, localMedia)
}

// assembleRuntime is newRuntime with the local media backends supplied by media
func assembleRuntime(ctx context.Context, a *app, requireModes bool,
	media func(*config.Config, storage.Storage, *zap.Logger) (capability.Prober, capability.VideoComposer)) (*runtime, error) {
	cfg := a.cfg

	st, err := storage.NewStorage(ctx, cfg.Storage, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact storage: %w", err)
	}

	store, err := jobstore.New(ctx, cfg.Store, a.logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	prober, composer := media(cfg, st, a.logger)

	client := httpclient.NewHTTPClient(httpclient.Config{Timeout: cfg.Pipeline.CallTimeout}, a.logger)
	registry, err := buildRegistry(cfg, client, st, prober, composer, a.logger)
	if err == nil && requireModes && len(registry.Modes()) == 0 {
		err = errors.New("no pipeline mode has image and speech endpoints configured")
	}
	if err != nil {
		store.Close()
		st.Close()
		return nil, err
	}

	gate := validation.New(cfg.Validation, prober, a.logger)
	orch, err := orchestrator.New(orchestrator.OptionsFromConfig(cfg), orchestrator.Deps{
		Registry: registry,
		Gate:     gate,
		Store:    store,
		Storage:  st,
	}, a.logger)
	if err != nil {
		store.Close()
		st.Close()
		return nil, err
	}

	return &runtime{
		orch:    orch,
		store:   store,
		storage: st,
		gate:    gate,
		client:  client,
		logger:  a.logger,
		timeout: config.ParseDuration(cfg.Pipeline.ShutdownTimeout, time.Minute),
	}, nil
}

// buildRegistry registers every mode whose image and speech endpoints are
// configured. Video goes to the remote composer when one is set, else to ffmpeg.
func buildRegistry(cfg *config.Config, client httpclient.Client, st storage.Storage,
	prober capability.Prober, composer capability.VideoComposer, logger *zap.Logger) (*capability.Registry, error) {
	registry := capability.NewRegistry()
	breaker := cfg.Capabilities.Breaker

	modes := []struct {
		mode job.Mode
		cfg  config.ModeConfig
	}{
		{job.ModeTool, cfg.Capabilities.Tool},
		{job.ModeVeo, cfg.Capabilities.Veo},
	}

	for _, m := range modes {
		if m.cfg.Image.URL == "" || m.cfg.Speech.URL == "" {
			logger.Debug("Mode has no generation endpoints, skipping", zap.String("mode", m.mode.String()))
			continue
		}

		images, err := httpbackend.NewEndpoint(m.mode.String()+"-image", m.cfg.Image, breaker, client, st, logger)
		if err != nil {
			return nil, err
		}
		speech, err := httpbackend.NewEndpoint(m.mode.String()+"-speech", m.cfg.Speech, breaker, client, st, logger)
		if err != nil {
			return nil, err
		}

		video := composer
		if m.cfg.Video.URL != "" {
			endpoint, err := httpbackend.NewEndpoint(m.mode.String()+"-video", m.cfg.Video, breaker, client, st, logger)
			if err != nil {
				return nil, err
			}
			video = httpbackend.NewVideoClient(endpoint, st)
		}

		err = registry.Register(&capability.Strategy{
			Mode:       m.mode,
			Images:     httpbackend.NewImageClient(images),
			Speech:     httpbackend.NewSpeechClient(speech, prober),
			Video:      video,
			ImageStyle: m.cfg.ImageStyle,
			Language:   m.cfg.Language,
			Voice:      m.cfg.Voice,
			Width:      cfg.Capabilities.FFmpeg.Width,
			Height:     cfg.Capabilities.FFmpeg.Height,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Pipeline mode ready", zap.String("mode", m.mode.String()))
	}

	return registry, nil
}

// Close shuts the orchestrator down and releases the stores
func (r *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var errs []error
	if err := r.orch.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	r.client.Close()
	_ = r.logger.Sync()
	return utils.CombineErrors(errs)
}
