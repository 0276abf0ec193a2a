// Package retry runs capability invocations under the pipeline retry policy.
//
// Transient failures back off exponentially. CapacityExceeded failures back
// off by the same schedule scaled by Policy.CapacityMultiplier. Anything
// else stops at once.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/job"
)

// Policy bounds the retries of one invocation
type Policy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	CapacityMultiplier  float64
}

// DefaultPolicy returns three attempts starting at one second
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         config.DefaultMaxAttempts,
		InitialInterval:     time.Second,
		MaxInterval:         30 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.1,
		CapacityMultiplier:  4,
	}
}

// PolicyFromConfig converts the retry section of the configuration
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	p.InitialInterval = config.ParseDuration(cfg.InitialInterval, p.InitialInterval)
	p.MaxInterval = config.ParseDuration(cfg.MaxInterval, p.MaxInterval)
	if cfg.Multiplier >= 1 {
		p.Multiplier = cfg.Multiplier
	}
	if cfg.RandomizationFactor >= 0 && cfg.RandomizationFactor < 1 {
		p.RandomizationFactor = cfg.RandomizationFactor
	}
	if cfg.CapacityMultiplier >= 1 {
		p.CapacityMultiplier = cfg.CapacityMultiplier
	}
	return p
}

// NewBackOff returns the backoff schedule of one invocation
func (p Policy) NewBackOff() *ClassBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.RandomizationFactor
	exp.Reset()

	multiplier := p.CapacityMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return &ClassBackOff{base: exp, capacityMultiplier: multiplier}
}

// ClassBackOff stretches the wait after a CapacityExceeded failure
type ClassBackOff struct {
	base               backoff.BackOff
	capacityMultiplier float64
	last               job.FailureClass
}

// Observe records the class of the failure the next wait follows
func (b *ClassBackOff) Observe(class job.FailureClass) {
	b.last = class
}

// NextBackOff implements backoff.BackOff
func (b *ClassBackOff) NextBackOff() time.Duration {
	next := b.base.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.last == job.ClassCapacity {
		next = time.Duration(float64(next) * b.capacityMultiplier)
	}
	return next
}

// Reset implements backoff.BackOff
func (b *ClassBackOff) Reset() {
	b.base.Reset()
	b.last = job.ClassPermanent
}

// Operation is one attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Notify is called before each wait with the failed attempt number
type Notify func(attempt int, err error, class job.FailureClass, wait time.Duration)

// Do runs op until it succeeds, fails permanently or runs out of attempts.
// It returns the number of attempts made. Waits end early when ctx is done.
func Do[T any](ctx context.Context, p Policy, op Operation[T], notify Notify) (T, int, error) {
	b := p.NewBackOff()
	attempts := 0

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		res, err := op(ctx, attempts)
		if err == nil {
			return res, nil
		}

		class := job.ClassOf(err)
		if !class.Retryable() {
			return res, backoff.Permanent(err)
		}
		b.Observe(class)
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(p.MaxAttempts, 1))),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if notify != nil {
				notify(attempts, err, b.last, wait)
			}
		}),
	)

	return result, attempts, err
}
