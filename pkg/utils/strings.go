package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeFilename removes invalid characters from a filename
func SanitizeFilename(filename string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(filename, "_")
	sanitized = strings.Trim(sanitized, " .")
	if sanitized == "" {
		sanitized = "unnamed"
	}
	return sanitized
}

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

// FormatDuration formats a duration as hours, minutes and seconds
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}

	minutes := int(seconds / 60)
	remainingSeconds := seconds - float64(minutes*60)
	if minutes < 60 {
		return fmt.Sprintf("%dm %.1fs", minutes, remainingSeconds)
	}

	return fmt.Sprintf("%dh %dm %.1fs", minutes/60, minutes%60, remainingSeconds)
}

// TruncateRunes shortens s to at most maxRunes runes, ending with an ellipsis
// when something was cut. It never splits a multi-byte character.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	runes := []rune(s)
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return strings.TrimRightFunc(string(runes[:maxRunes-3]), unicode.IsSpace) + "..."
}

// CountWords counts whitespace separated words
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// CollapseWhitespace joins all whitespace runs into single spaces
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsAnyFold checks if s contains any of the given substrings, ignoring case
func ContainsAnyFold(s string, substrings []string) bool {
	lower := strings.ToLower(s)
	for _, substr := range substrings {
		if substr != "" && strings.Contains(lower, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
