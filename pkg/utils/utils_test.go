package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		timeout   bool
		retryable bool
		capacity  bool
	}{
		{name: "Nil", err: nil},
		{name: "Deadline", err: context.DeadlineExceeded, timeout: true, retryable: true},
		{name: "Wrapped deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), timeout: true, retryable: true},
		{name: "Cancelled", err: context.Canceled},
		{name: "Bad gateway", err: errors.New("unexpected status 502"), retryable: true},
		{name: "Too many requests", err: errors.New("unexpected status 429"), capacity: true},
		{name: "Quota", err: errors.New("Quota exceeded for project"), capacity: true},
		{name: "Connection refused", err: errors.New("dial tcp 127.0.0.1:1: connection refused"), retryable: true},
		{name: "Bad request", err: errors.New("unexpected status 400")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.timeout, IsTimeoutError(tt.err))
			assert.Equal(t, tt.retryable, IsRetryableError(tt.err))
			assert.Equal(t, tt.capacity, IsCapacityError(tt.err))
		})
	}
}

func TestIsFileNotFoundError(t *testing.T) {
	_, err := os.Open("/definitely/not/here")
	assert.True(t, IsFileNotFoundError(err))
	assert.True(t, IsFileNotFoundError(errors.New("api error NoSuchKey: missing")))
	assert.False(t, IsFileNotFoundError(errors.New("boom")))
}

func TestCombineErrors(t *testing.T) {
	assert.NoError(t, CombineErrors(nil))
	assert.NoError(t, CombineErrors([]error{nil, nil}))

	single := errors.New("one")
	assert.Same(t, single, CombineErrors([]error{nil, single}))

	other := errors.New("two")
	combined := CombineErrors([]error{single, other})
	assert.ErrorIs(t, combined, single)
	assert.ErrorIs(t, combined, other)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", TruncateRunes("short", 10))
	assert.Equal(t, "città...", TruncateRunes("città di notte", 8))
	assert.Equal(t, "ab", TruncateRunes("abcdef", 2))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestStringHelpers(t *testing.T) {
	assert.Equal(t, 4, CountWords("  one two\nthree\tfour "))
	assert.Equal(t, "a b c", CollapseWhitespace(" a \n b\t\tc "))
	assert.True(t, ContainsAnyFold("A scene of VIOLENCE", []string{"violence"}))
	assert.False(t, ContainsAnyFold("calm", []string{"", "storm"}))
	assert.Equal(t, "job_1_final", SanitizeFilename("job/1:final"))
	assert.Equal(t, "unnamed", SanitizeFilename(" .. "))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2m 5.0s", FormatDuration(125*time.Second))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateURL("https://api.example.com/v1"))
	assert.Error(t, ValidateURL("ftp://example.com"))
	assert.Error(t, ValidateURL("https://"))
	assert.Error(t, ValidateURL(" "))

	assert.True(t, ValidateExtension("MP4", []string{".mp4", ".mov"}))
	assert.False(t, ValidateExtension(".mkv", []string{".mp4", ".mov"}))

	assert.Error(t, ValidateNonEmpty("   ", "text"))
	assert.NoError(t, ValidateMaxBytes("abc", 3, "text"))
	assert.Error(t, ValidateMaxBytes("abcd", 3, "text"))
	assert.NoError(t, ValidateOneOf("veo", []string{"tool", "veo"}, "mode"))
	assert.Error(t, ValidateOneOf("x", []string{"tool", "veo"}, "mode"))
}
