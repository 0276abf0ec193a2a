// Package stats keeps running aggregates of invocation latency per pipeline stage.
package stats

import (
	"math"
	"sync"
	"time"
)

// StreamingStats aggregates a stream of values in constant memory
type StreamingStats struct {
	mu         sync.RWMutex
	count      int64
	sum        float64
	sumSquares float64
	min        float64
	max        float64
	lastUpdate time.Time
}

// NewStreamingStats creates an empty aggregate
func NewStreamingStats() *StreamingStats {
	return &StreamingStats{
		min: math.Inf(1),
		max: math.Inf(-1),
	}
}

// Update adds a value
func (s *StreamingStats) Update(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += value
	s.sumSquares += value * value
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
	s.lastUpdate = time.Now()
}

// Count returns the number of values seen
func (s *StreamingStats) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Mean returns the arithmetic mean, zero when empty
func (s *StreamingStats) Mean() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// Summary is a point-in-time copy of an aggregate
type Summary struct {
	Count      int64     `json:"count"`
	Sum        float64   `json:"sum"`
	Mean       float64   `json:"mean"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	StdDev     float64   `json:"std_dev"`
	LastUpdate time.Time `json:"last_update"`
}

// GetSummary returns a consistent snapshot taken under one lock
func (s *StreamingStats) GetSummary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Summary{Count: s.count, Sum: s.sum, LastUpdate: s.lastUpdate}
	if s.count == 0 {
		return out
	}

	out.Mean = s.sum / float64(s.count)
	out.Min = s.min
	out.Max = s.max
	if s.count > 1 {
		// sample variance: (sum_squares - n * mean^2) / (n - 1)
		variance := (s.sumSquares - float64(s.count)*out.Mean*out.Mean) / float64(s.count-1)
		if variance > 0 {
			out.StdDev = math.Sqrt(variance)
		}
	}
	return out
}

// Reset clears the aggregate
func (s *StreamingStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count = 0
	s.sum = 0
	s.sumSquares = 0
	s.min = math.Inf(1)
	s.max = math.Inf(-1)
	s.lastUpdate = time.Time{}
}
