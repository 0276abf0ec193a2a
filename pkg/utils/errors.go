package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// WrapError wraps an error with additional context
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted context
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	return ContainsAnyFold(err.Error(), []string{
		"timeout",
		"deadline exceeded",
		"connection timed out",
	})
}

// IsNetworkError checks if an error is a network-related error
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	return ContainsAnyFold(err.Error(), []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"no route to host",
		"broken pipe",
	})
}

// IsFileNotFoundError checks if an error indicates a missing file or key
func IsFileNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT) {
		return true
	}

	return ContainsAnyFold(err.Error(), []string{
		"no such file or directory",
		"file not found",
		"nosuchkey",
	})
}

// IsRetryableError checks if an error is likely to be retryable.
// Cancellation of the caller's own context is never retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if IsTimeoutError(err) || IsNetworkError(err) {
		return true
	}

	return ContainsAnyFold(err.Error(), []string{
		"status 408", // Request Timeout
		"status 500", // Internal Server Error
		"status 502", // Bad Gateway
		"status 503", // Service Unavailable
		"status 504", // Gateway Timeout
		"temporary failure",
	})
}

// IsCapacityError checks if an error reports exhausted upstream quota
func IsCapacityError(err error) bool {
	if err == nil {
		return false
	}

	return ContainsAnyFold(err.Error(), []string{
		"status 429",
		"too many requests",
		"quota exceeded",
		"resource exhausted",
	})
}

// CombineErrors combines multiple errors into a single error
func CombineErrors(errs []error) error {
	valid := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			valid = append(valid, err)
		}
	}

	switch len(valid) {
	case 0:
		return nil
	case 1:
		return valid[0]
	default:
		return errors.Join(valid...)
	}
}
