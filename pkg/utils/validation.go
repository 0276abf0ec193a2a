package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL validates if a string is an http(s) URL
func ValidateURL(urlStr string) error {
	if strings.TrimSpace(urlStr) == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (supported: http, https)", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}

// ValidateExtension checks if a file extension is in the allowed list
func ValidateExtension(ext string, allowed []string) bool {
	if ext == "" || len(allowed) == 0 {
		return false
	}

	normalizedExt := normalizeExt(ext)
	for _, allowedExt := range allowed {
		if normalizedExt == normalizeExt(allowedExt) {
			return true
		}
	}

	return false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ValidateNonEmpty checks if a string is not empty after trimming
func ValidateNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateMaxBytes checks that a string does not exceed a byte budget
func ValidateMaxBytes(value string, maxBytes int, fieldName string) error {
	if maxBytes > 0 && len(value) > maxBytes {
		return fmt.Errorf("%s exceeds %s (got %s)",
			fieldName, FormatBytes(int64(maxBytes)), FormatBytes(int64(len(value))))
	}
	return nil
}

// ValidateOneOf checks if a value is one of the allowed values
func ValidateOneOf(value string, allowed []string, fieldName string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}

	return fmt.Errorf("%s must be one of %v, got: %s", fieldName, allowed, value)
}
