package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/job"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:        3,
		InitialInterval:    time.Millisecond,
		MaxInterval:        5 * time.Millisecond,
		Multiplier:         2,
		CapacityMultiplier: 4,
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	var waits []int
	result, attempts, err := Do(context.Background(), fastPolicy(),
		func(ctx context.Context, attempt int) (string, error) {
			if attempt < 3 {
				return "", job.Transient("audio", errors.New("timeout"))
			}
			return "ok", nil
		},
		func(attempt int, err error, class job.FailureClass, wait time.Duration) {
			assert.Equal(t, job.ClassTransient, class)
			waits = append(waits, attempt)
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, waits)
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	cause := job.Permanent("image", errors.New("prompt rejected"))
	_, attempts, err := Do(context.Background(), fastPolicy(),
		func(ctx context.Context, attempt int) (int, error) {
			return 0, cause
		}, nil)

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, job.ClassPermanent, job.ClassOf(err))
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	_, attempts, err := Do(context.Background(), fastPolicy(),
		func(ctx context.Context, attempt int) (int, error) {
			return 0, job.CapacityExceeded("image", errors.New("status 429"))
		}, nil)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, job.ClassCapacity, job.ClassOf(err))
}

func TestDoStopsWhenContextEnds(t *testing.T) {
	p := fastPolicy()
	p.InitialInterval = time.Hour
	p.MaxInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, attempts, err := Do(ctx, p, func(ctx context.Context, attempt int) (int, error) {
		return 0, job.Transient("video", errors.New("busy"))
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestClassBackOffStretchesCapacityWaits(t *testing.T) {
	p := Policy{
		InitialInterval:    100 * time.Millisecond,
		MaxInterval:        time.Second,
		Multiplier:         2,
		CapacityMultiplier: 4,
	}

	b := p.NewBackOff()
	b.Observe(job.ClassTransient)
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())

	b.Observe(job.ClassCapacity)
	assert.Equal(t, 800*time.Millisecond, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{
		MaxAttempts:        5,
		InitialInterval:    "250ms",
		MaxInterval:        "bogus",
		Multiplier:         3,
		CapacityMultiplier: 0.5,
	})

	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.InitialInterval)
	assert.Equal(t, 30*time.Second, p.MaxInterval)
	assert.Equal(t, 3.0, p.Multiplier)
	assert.Equal(t, 4.0, p.CapacityMultiplier)

	assert.Equal(t, DefaultPolicy(), PolicyFromConfig(config.RetryConfig{RandomizationFactor: 0.1}))
}
