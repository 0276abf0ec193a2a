// Package orchestrator drives generation jobs through extraction, per-sequence
// image and narration synthesis, video composition and validation.
//
// Every job is mutated by exactly one goroutine, its runner. Concurrent
// sequence work reports back to the runner as events, and readers only ever
// see published copies, so GetStatus never waits on stage work.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"media-pipeline-go/internal/retry"
	"media-pipeline-go/internal/workers"
	"media-pipeline-go/pkg/capability"
	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/extract"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/jobstore"
	"media-pipeline-go/pkg/stats"
	"media-pipeline-go/pkg/storage"
	"media-pipeline-go/pkg/utils"
)

// ErrShuttingDown is returned by Submit once Shutdown has begun
var ErrShuttingDown = errors.New("orchestrator is shutting down")

const storeTimeout = 10 * time.Second

// Options tunes admission, concurrency and retries
type Options struct {
	DefaultMode         job.Mode
	MaxConcurrentJobs   int
	SequenceConcurrency int
	MaxInputBytes       int
	CallTimeout         time.Duration
	Retry               retry.Policy
	Extraction          config.ExtractionConfig
}

// OptionsFromConfig derives Options from the application configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultMode:         job.Mode(cfg.Pipeline.DefaultMode),
		MaxConcurrentJobs:   cfg.Pipeline.MaxConcurrentJobs,
		SequenceConcurrency: cfg.Pipeline.SequenceConcurrency,
		MaxInputBytes:       cfg.Pipeline.MaxInputBytes,
		CallTimeout:         cfg.Pipeline.CallTimeout,
		Retry:               retry.PolicyFromConfig(cfg.Retry),
		Extraction:          cfg.Extraction,
	}
}

func (o *Options) applyDefaults() {
	if o.DefaultMode == "" {
		o.DefaultMode = job.Mode(config.DefaultMode)
	}
	if o.MaxConcurrentJobs <= 0 {
		o.MaxConcurrentJobs = config.DefaultMaxConcurrentJobs
	}
	if o.SequenceConcurrency <= 0 {
		o.SequenceConcurrency = config.DefaultSequenceConcurrency
	}
	if o.MaxInputBytes <= 0 {
		o.MaxInputBytes = config.DefaultMaxInputBytes
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = config.DefaultCallTimeout
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = retry.DefaultPolicy()
	}
}

// Validator is the quality gate run on the composed video
type Validator interface {
	Validate(ctx context.Context, video job.Artifact, sequences []job.Sequence,
		artifacts map[job.Stage]map[int]job.Artifact, elapsed time.Duration) (*job.ValidationResult, error)
	MinQualityScore() float64
}

// Deps are the collaborators of the orchestrator. Storage may be nil, in
// which case Delete only removes the job record.
type Deps struct {
	Registry *capability.Registry
	Gate     Validator
	Store    jobstore.Store
	Storage  storage.Storage
}

// Input is one generation request
type Input struct {
	Text        string
	Title       string
	Description string
	Mode        string
	Owner       string
}

// Stats reports admission and per-stage invocation statistics
type Stats struct {
	Pool   workers.PoolStats    `json:"pool"`
	Stages []stats.StageSummary `json:"stages"`
}

// Orchestrator owns the job state machine
type Orchestrator struct {
	opts   Options
	deps   Deps
	logger *zap.Logger
	pool   *workers.Pool
	stats  *stats.Recorder
	now    func() time.Time

	rootCtx    context.Context
	rootCancel context.CancelFunc
	runners    sync.WaitGroup

	mu      sync.RWMutex
	handles map[string]*handle
	closed  bool
}

// handle is the in-process state of an admitted job. job belongs to whoever
// claims the handle: the runner, or Cancel and Shutdown while it is queued.
type handle struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	claimed   atomic.Bool
	strategy  *capability.Strategy
	job       *job.Job
	done      chan struct{}

	mu       sync.RWMutex
	view     *job.Job
	snapshot *job.Snapshot
}

// claim hands the job to the caller. Only the first claim succeeds.
func (h *handle) claim() bool {
	return h.claimed.CompareAndSwap(false, true)
}

func (h *handle) publish(view *job.Job, snap *job.Snapshot) {
	h.mu.Lock()
	h.view = view
	h.snapshot = snap
	h.mu.Unlock()
}

func (h *handle) current() (*job.Job, *job.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.view, h.snapshot
}

// New creates an orchestrator. Call Start to begin running jobs.
func New(opts Options, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Registry == nil {
		return nil, errors.New("capability registry is required")
	}
	if deps.Gate == nil {
		return nil, errors.New("validation gate is required")
	}
	if deps.Store == nil {
		return nil, errors.New("job store is required")
	}
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:       opts,
		deps:       deps,
		logger:     logger,
		pool:       workers.NewPool(workers.PoolConfig{Workers: opts.MaxConcurrentJobs}, logger),
		stats:      stats.NewRecorder(),
		now:        time.Now,
		rootCtx:    ctx,
		rootCancel: cancel,
		handles:    make(map[string]*handle),
	}, nil
}

// Start launches the job workers. Jobs submitted earlier wait in the queue.
func (o *Orchestrator) Start() error {
	return o.pool.Start()
}

// Shutdown stops admission, cancels running jobs and waits for their runners
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.logger.Info("Shutting down orchestrator")
	o.rootCancel()

	// queued jobs fail now instead of waiting for a worker that may never come
	o.mu.RLock()
	queued := make([]*handle, 0, len(o.handles))
	for _, h := range o.handles {
		queued = append(queued, h)
	}
	o.mu.RUnlock()
	for _, h := range queued {
		h.cancelled.Store(true)
		o.release(h, fmt.Errorf("%w while %s: %w", job.ErrCancelled, job.StatusPending, ErrShuttingDown))
	}

	var errs []error
	if err := o.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		o.runners.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for job runners: %w", ctx.Err()))
	}

	return utils.CombineErrors(errs)
}

// Submit validates the request, persists a pending job and queues it. It
// returns as soon as the job is admitted.
func (o *Orchestrator) Submit(ctx context.Context, in Input) (string, error) {
	mode, err := job.ParseMode(in.Mode, o.opts.DefaultMode)
	if err != nil {
		return "", err
	}
	strategy, err := o.deps.Registry.Resolve(mode)
	if err != nil {
		return "", err
	}

	if err := utils.ValidateMaxBytes(in.Text, o.opts.MaxInputBytes, "text"); err != nil {
		return "", fmt.Errorf("%w: %v", job.ErrInvalidInput, err)
	}
	text := extract.Normalize(in.Text)
	if text == "" {
		return "", fmt.Errorf("%w: text is empty", job.ErrInvalidInput)
	}

	o.mu.RLock()
	closed := o.closed
	o.mu.RUnlock()
	if closed {
		return "", ErrShuttingDown
	}

	j := job.New(uuid.NewString(), in.Owner, in.Title, in.Description, mode, text, o.now())
	if err := o.deps.Store.Save(ctx, j); err != nil {
		return "", utils.WrapError(err, "failed to persist job")
	}

	hctx, cancel := context.WithCancel(o.rootCtx)
	h := &handle{
		id:       j.ID,
		ctx:      hctx,
		cancel:   cancel,
		strategy: strategy,
		job:      j,
		done:     make(chan struct{}),
	}
	h.publish(j.Clone(), o.snapshotOf(j))

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		o.abandon(j, ErrShuttingDown)
		return "", ErrShuttingDown
	}
	o.handles[j.ID] = h
	o.runners.Add(1)
	o.mu.Unlock()

	task := &workers.Task{
		ID: j.ID,
		ProcessFunc: func(poolCtx context.Context) error {
			stop := context.AfterFunc(poolCtx, h.cancel)
			defer stop()
			o.run(h)
			return nil
		},
	}
	if err := o.pool.Submit(task); err != nil {
		h.cancelled.Store(true)
		cancel()
		o.release(h, fmt.Errorf("%w while %s: %w", job.ErrCancelled, job.StatusPending, err))
	}

	o.logger.Info("Job submitted",
		zap.String("job_id", j.ID),
		zap.String("mode", mode.String()),
		zap.String("owner", in.Owner),
		zap.Int("input_bytes", len(text)))

	return j.ID, nil
}

// release fails a job whose runner has not started, through the same commit
// path a runner uses. It reports false when a runner already owns the job.
func (o *Orchestrator) release(h *handle, cause error) bool {
	if !h.claim() {
		return false
	}
	defer o.runners.Done()
	defer close(h.done)

	o.newRunner(h).fail(cause)
	return true
}

// abandon fails a job that has no handle in this process
func (o *Orchestrator) abandon(j *job.Job, cause error) {
	now := o.now()
	j.Status = job.StatusFailed
	j.Error = cause.Error()
	j.CompletedAt = &now
	j.Touch(now)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := o.deps.Store.Save(ctx, j); err != nil {
		o.logger.Warn("Failed to persist abandoned job", zap.String("job_id", j.ID), zap.Error(err))
	}
}

func (o *Orchestrator) handle(id string) *handle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.handles[id]
}

// snapshotOf renders the client view with the video reference resolved to a location
func (o *Orchestrator) snapshotOf(j *job.Job) *job.Snapshot {
	snap := j.Snapshot()
	if snap.VideoPath != nil && o.deps.Storage != nil {
		location := o.deps.Storage.Location(*snap.VideoPath)
		snap.VideoPath = &location
	}
	return snap
}

// GetStatus returns the latest committed snapshot of a job
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*job.Snapshot, error) {
	if h := o.handle(id); h != nil {
		_, snap := h.current()
		s := *snap
		return &s, nil
	}

	j, err := o.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.snapshotOf(j), nil
}

// Get returns a copy of the full job
func (o *Orchestrator) Get(ctx context.Context, id string) (*job.Job, error) {
	if h := o.handle(id); h != nil {
		view, _ := h.current()
		return view.Clone(), nil
	}
	return o.deps.Store.Get(ctx, id)
}

// List returns the jobs of owner, or every job when owner is empty, newest first
func (o *Orchestrator) List(ctx context.Context, owner string) ([]*job.Job, error) {
	jobs, err := o.deps.Store.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	for i, j := range jobs {
		if h := o.handle(j.ID); h != nil {
			view, _ := h.current()
			jobs[i] = view.Clone()
		}
	}
	return jobs, nil
}

// Cancel fails a queued job at once and asks a running one to stop at its
// next checkpoint. Cancelling a finished job is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	h := o.handle(id)
	if h == nil {
		j, err := o.deps.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if j.IsTerminal() {
			return nil
		}
		// left behind by an earlier process, nothing will ever run it
		o.logger.Info("Failing orphaned job", zap.String("job_id", id))
		o.abandon(j, job.ErrCancelled)
		return nil
	}

	if view, _ := h.current(); view.IsTerminal() {
		return nil
	}

	h.cancelled.Store(true)
	h.cancel()

	if o.release(h, fmt.Errorf("%w while %s", job.ErrCancelled, job.StatusPending)) {
		o.logger.Info("Queued job cancelled", zap.String("job_id", id))
		return nil
	}
	o.logger.Info("Job cancellation requested", zap.String("job_id", id))
	return nil
}

// Delete removes a finished job and its artifacts
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	h := o.handle(id)
	if h != nil {
		if view, _ := h.current(); !view.IsTerminal() {
			return fmt.Errorf("%w: job %s is %s", job.ErrConflict, id, view.Status)
		}
	} else {
		j, err := o.deps.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !j.IsTerminal() {
			return fmt.Errorf("%w: job %s is %s", job.ErrConflict, id, j.Status)
		}
	}

	if o.deps.Storage != nil {
		removed, err := o.deps.Storage.DeletePrefix(ctx, storage.JobPrefix(id))
		if err != nil {
			return utils.WrapErrorf(err, "failed to delete artifacts of job %s", id)
		}
		o.logger.Debug("Deleted job artifacts", zap.String("job_id", id), zap.Int("objects", removed))
	}

	if err := o.deps.Store.Delete(ctx, id); err != nil && !(h != nil && errors.Is(err, job.ErrNotFound)) {
		return err
	}

	o.mu.Lock()
	delete(o.handles, id)
	o.mu.Unlock()

	o.logger.Info("Job deleted", zap.String("job_id", id))
	return nil
}

// Wait blocks until the job is terminal or ctx is done
func (o *Orchestrator) Wait(ctx context.Context, id string) (*job.Snapshot, error) {
	h := o.handle(id)
	if h == nil {
		snap, err := o.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if !snap.Status.IsTerminal() {
			return snap, fmt.Errorf("%w: job %s is not running in this process", job.ErrConflict, id)
		}
		return snap, nil
	}

	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return o.GetStatus(ctx, id)
}

// Stats reports pool and stage statistics
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Pool:   o.pool.Statistics(),
		Stages: o.stats.Summaries(),
	}
}
