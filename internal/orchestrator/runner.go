package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"media-pipeline-go/internal/retry"
	"media-pipeline-go/pkg/extract"
	"media-pipeline-go/pkg/job"
)

type eventKind int

const (
	eventRetry eventKind = iota
	eventDone
)

// event carries the outcome of sequence work to the job's runner
type event struct {
	kind     eventKind
	stage    job.Stage
	index    int
	artifact job.Artifact
	attempts int
	err      error
	class    job.FailureClass
	wait     time.Duration
}

// runner is the single writer of one job
type runner struct {
	o       *Orchestrator
	h       *handle
	job     *job.Job
	workers stageWorkers
	logger  *zap.Logger
	started time.Time
}

func (o *Orchestrator) newRunner(h *handle) *runner {
	j := h.job
	return &runner{
		o:       o,
		h:       h,
		job:     j,
		workers: newStageWorkers(h.strategy, o.now),
		logger:  o.logger.With(zap.String("job_id", j.ID), zap.String("mode", j.Mode.String())),
		started: o.now(),
	}
}

// run drives the job unless Cancel or Shutdown released it while queued
func (o *Orchestrator) run(h *handle) {
	if !h.claim() {
		return
	}
	defer o.runners.Done()
	defer close(h.done)

	r := o.newRunner(h)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Job runner panicked", zap.Any("panic", rec))
			r.fail(fmt.Errorf("internal error: %v", rec))
		}
	}()

	r.execute()
}

func (r *runner) execute() {
	r.logger.Info("Job started")

	if r.stopped() || !r.extract() {
		return
	}
	if r.stopped() || !r.generate() {
		return
	}
	if r.stopped() {
		return
	}
	video, ok := r.compose()
	if !ok || r.stopped() {
		return
	}
	r.validate(video)
}

func (r *runner) cancelled() bool {
	return r.h.cancelled.Load() || r.h.ctx.Err() != nil
}

// stopped is the cancellation checkpoint. A cancelled job is failed here.
func (r *runner) stopped() bool {
	if !r.cancelled() {
		return false
	}
	r.fail(fmt.Errorf("%w while %s", job.ErrCancelled, r.job.Status))
	return true
}

// commit publishes the current state and writes it through to the store.
// When the store already holds a terminal record, written by another
// process, the runner adopts that record and stops.
func (r *runner) commit() {
	j := r.job
	j.Touch(r.o.now())
	updatePercent(j)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.o.deps.Store.Save(ctx, j); err != nil {
		if errors.Is(err, job.ErrConflict) && r.adoptStored(ctx) {
			return
		}
		r.logger.Warn("Failed to persist job", zap.String("status", string(j.Status)), zap.Error(err))
	}

	r.h.publish(j.Clone(), r.o.snapshotOf(j))
}

// adoptStored replaces the job with its stored terminal record and cancels the runner
func (r *runner) adoptStored(ctx context.Context) bool {
	stored, err := r.o.deps.Store.Get(ctx, r.job.ID)
	if err != nil || !stored.IsTerminal() {
		return false
	}

	r.h.cancelled.Store(true)
	r.h.cancel()
	r.job = stored
	r.h.publish(stored.Clone(), r.o.snapshotOf(stored))

	r.logger.Warn("Job was finished elsewhere, stopping",
		zap.String("status", string(stored.Status)),
		zap.String("error", stored.Error))
	return true
}

func (r *runner) fail(err error) {
	if r.job.IsTerminal() {
		return
	}
	now := r.o.now()
	r.job.Status = job.StatusFailed
	r.job.Error = err.Error()
	r.job.CompletedAt = &now
	r.commit()

	r.logger.Warn("Job failed",
		zap.Error(err),
		zap.Duration("elapsed", now.Sub(r.started)),
		zap.Int("completed_units", r.job.Progress.CompletedUnits))
}

func (r *runner) extract() bool {
	r.job.Status = job.StatusExtracting
	r.job.Progress.CurrentStage = job.StageExtraction
	r.commit()

	rules := extract.RulesetFor(r.o.opts.Extraction, r.job.Mode)
	start := r.o.now()
	sequences, err := extract.New(rules).Extract(r.job.Input)
	r.o.stats.Observe(string(job.StageExtraction), r.o.now().Sub(start), 1, err == nil)
	if err != nil {
		r.job.Progress.Stages[job.StageExtraction] = job.StageCount{Failed: 1, Total: 1}
		r.fail(&job.StageError{Stage: job.StageExtraction, Index: job.JobLevel, Attempts: 1, Err: err})
		return false
	}

	r.job.Sequences = sequences
	beginGeneration(r.job)
	r.commit()

	r.logger.Info("Sequences extracted",
		zap.Int("sequences", len(sequences)),
		zap.String("ruleset", rules.Version()))
	return true
}

// generate fans image and narration work out to a bounded pool and applies
// the results as they arrive. Every sequence runs to completion even after
// a sibling failed, so produced artifacts are kept.
func (r *runner) generate() bool {
	events := make(chan event)
	sequences := append([]job.Sequence(nil), r.job.Sequences...)
	jobID, title := r.job.ID, r.job.Title

	go func() {
		p := pool.New().WithMaxGoroutines(r.o.opts.SequenceConcurrency)
		for _, seq := range sequences {
			for _, stage := range []job.Stage{job.StageImage, job.StageAudio} {
				seq, stage := seq, stage
				p.Go(func() { r.generateOne(jobID, title, stage, seq, events) })
			}
		}
		p.Wait()
		close(events)
	}()

	var failure *job.StageError
	for ev := range events {
		if se := r.apply(ev); se != nil && failure == nil {
			failure = se
		}
	}

	if r.stopped() {
		return false
	}
	if failure != nil {
		r.fail(failure)
		return false
	}
	return true
}

// generateOne runs on a pool goroutine and must not touch r.job
func (r *runner) generateOne(jobID, title string, stage job.Stage, seq job.Sequence, events chan<- event) {
	worker := r.workers.forStage(stage)
	index := seq.Index

	artifact, attempts, err := invoke(r, stage, func(ctx context.Context) (job.Artifact, error) {
		return worker.Run(ctx, jobID, &index, StageInputs{Title: title, Sequence: &seq})
	}, func(attempt int, err error, class job.FailureClass, wait time.Duration) {
		events <- event{kind: eventRetry, stage: stage, index: index, attempts: attempt, err: err, class: class, wait: wait}
	})

	events <- event{kind: eventDone, stage: stage, index: index, artifact: artifact, attempts: attempts, err: err}
}

// apply folds one event into the job. It returns the stage error of a
// sequence that gave up.
func (r *runner) apply(ev event) *job.StageError {
	log := r.logger.With(zap.String("stage", string(ev.stage)), zap.Int("sequence", ev.index))

	if r.job.IsTerminal() {
		return nil
	}
	if ev.kind == eventRetry {
		recordRetry(r.job, ev.stage)
		r.commit()
		log.Warn("Retrying stage",
			zap.Int("attempt", ev.attempts),
			zap.String("class", ev.class.String()),
			zap.Duration("wait", ev.wait),
			zap.Error(ev.err))
		return nil
	}

	if r.cancelled() {
		log.Debug("Discarding result of cancelled job", zap.Bool("success", ev.err == nil))
		return nil
	}

	if ev.err != nil {
		recordFailure(r.job, ev.stage)
		r.commit()
		log.Error("Stage failed", zap.Int("attempts", ev.attempts), zap.Error(ev.err))
		return &job.StageError{Stage: ev.stage, Index: ev.index, Attempts: ev.attempts, Err: ev.err}
	}

	r.job.PutArtifact(ev.artifact)
	recordSuccess(r.job, ev.stage)
	r.commit()
	log.Debug("Stage completed", zap.Int("attempts", ev.attempts), zap.String("ref", ev.artifact.Ref))
	return nil
}

func (r *runner) compose() (job.Artifact, bool) {
	enterStage(r.job, job.StatusComposing, job.StageVideo)
	r.commit()

	in := StageInputs{
		Title:  r.job.Title,
		Images: r.job.OrderedArtifacts(job.StageImage),
		Audio:  r.job.OrderedArtifacts(job.StageAudio),
	}
	video, attempts, err := invoke(r, job.StageVideo, func(ctx context.Context) (job.Artifact, error) {
		return r.workers.video.Run(ctx, r.job.ID, nil, in)
	}, r.notifyJobLevel(job.StageVideo))

	if r.stopped() {
		return job.Artifact{}, false
	}
	if err != nil {
		recordFailure(r.job, job.StageVideo)
		r.fail(&job.StageError{Stage: job.StageVideo, Index: job.JobLevel, Attempts: attempts, Err: err})
		return job.Artifact{}, false
	}

	r.job.PutArtifact(video)
	recordSuccess(r.job, job.StageVideo)
	r.commit()
	r.logger.Info("Video composed",
		zap.String("ref", video.Ref),
		zap.Float64("duration_seconds", video.DurationSeconds))
	return video, true
}

func (r *runner) validate(video job.Artifact) {
	enterStage(r.job, job.StatusValidating, job.StageValidation)
	r.commit()

	gate := r.o.deps.Gate
	elapsed := r.o.now().Sub(r.started)
	result, attempts, err := invoke(r, job.StageValidation, func(ctx context.Context) (*job.ValidationResult, error) {
		return gate.Validate(ctx, video, r.job.Sequences, r.job.Artifacts, elapsed)
	}, r.notifyJobLevel(job.StageValidation))

	if r.stopped() {
		return
	}
	if err != nil {
		recordFailure(r.job, job.StageValidation)
		r.fail(&job.StageError{Stage: job.StageValidation, Index: job.JobLevel, Attempts: attempts, Err: err})
		return
	}

	r.job.ValidationResult = result
	if !result.IsValid {
		recordFailure(r.job, job.StageValidation)
		r.fail(&job.StageError{
			Stage:    job.StageValidation,
			Index:    job.JobLevel,
			Attempts: attempts,
			Err:      rejection(result, gate.MinQualityScore()),
		})
		return
	}

	recordSuccess(r.job, job.StageValidation)
	now := r.o.now()
	r.job.Status = job.StatusCompleted
	r.job.CompletedAt = &now
	r.commit()

	r.logger.Info("Job completed",
		zap.Float64("quality_score", result.QualityScore),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("elapsed", now.Sub(r.started)))
}

func rejection(result *job.ValidationResult, minScore float64) error {
	if len(result.Issues) > 0 {
		return fmt.Errorf("%w: %d blocking issue(s): %s",
			job.ErrValidationRejected, len(result.Issues), strings.Join(result.Issues, "; "))
	}
	return fmt.Errorf("%w: quality score %.2f below minimum %.2f",
		job.ErrValidationRejected, result.QualityScore, minScore)
}

// notifyJobLevel records retries of stages that run on the runner goroutine itself
func (r *runner) notifyJobLevel(stage job.Stage) retry.Notify {
	return func(attempt int, err error, class job.FailureClass, wait time.Duration) {
		if r.job.IsTerminal() {
			return
		}
		recordRetry(r.job, stage)
		r.commit()
		r.logger.Warn("Retrying stage",
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.String("class", class.String()),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
}

// outcome is the result of one capability call
type outcome[T any] struct {
	value T
	err   error
}

// invoke runs call under the retry policy. The cancellation flag is checked
// before every attempt. An attempt already in flight is not interrupted by
// cancellation; it is bounded by the call timeout instead, and a timeout is
// treated as transient. A call that ignores its context is left behind once
// the timeout fires and its late result is dropped.
func invoke[T any](r *runner, stage job.Stage, call func(ctx context.Context) (T, error), notify retry.Notify) (T, int, error) {
	timeout := r.o.opts.CallTimeout
	start := r.o.now()

	result, attempts, err := retry.Do(r.h.ctx, r.o.opts.Retry, func(ctx context.Context, attempt int) (T, error) {
		var zero T
		if r.cancelled() {
			return zero, job.ErrCancelled
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		done := make(chan outcome[T], 1)
		go func() {
			var out outcome[T]
			defer func() {
				if rec := recover(); rec != nil {
					out.err = job.Permanent(string(stage), fmt.Errorf("capability panicked: %v", rec))
				}
				done <- out
			}()
			out.value, out.err = call(callCtx)
		}()

		select {
		case out := <-done:
			if out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return zero, job.Transient(string(stage), fmt.Errorf("call timed out after %s: %w", timeout, out.err))
			}
			return out.value, out.err
		case <-callCtx.Done():
			r.logger.Warn("Capability call did not return in time",
				zap.String("stage", string(stage)),
				zap.Int("attempt", attempt),
				zap.Duration("timeout", timeout))
			return zero, job.Transient(string(stage), fmt.Errorf("call timed out after %s: %w", timeout, callCtx.Err()))
		}
	}, notify)

	r.o.stats.Observe(string(stage), r.o.now().Sub(start), attempts, err == nil)
	return result, attempts, err
}
