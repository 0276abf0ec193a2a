package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// StageStats tracks the outcome and latency of every invocation of one stage
type StageStats struct {
	latency   *StreamingStats
	succeeded int64
	failed    int64
	retries   int64
}

func newStageStats() *StageStats {
	return &StageStats{latency: NewStreamingStats()}
}

// StageSummary is the reported view of StageStats. Latency is in seconds.
type StageSummary struct {
	Stage     string  `json:"stage"`
	Succeeded int64   `json:"succeeded"`
	Failed    int64   `json:"failed"`
	Retries   int64   `json:"retries"`
	Latency   Summary `json:"latency_seconds"`
}

// Recorder collects StageStats keyed by stage name. It is safe for concurrent use.
type Recorder struct {
	mu     sync.RWMutex
	stages map[string]*StageStats
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{stages: make(map[string]*StageStats)}
}

func (r *Recorder) stage(name string) *StageStats {
	r.mu.RLock()
	s, ok := r.stages[name]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.stages[name]; !ok {
		s = newStageStats()
		r.stages[name] = s
	}
	return s
}

// Observe records one finished invocation including its retries
func (r *Recorder) Observe(stage string, elapsed time.Duration, attempts int, ok bool) {
	s := r.stage(stage)
	s.latency.Update(elapsed.Seconds())
	if ok {
		atomic.AddInt64(&s.succeeded, 1)
	} else {
		atomic.AddInt64(&s.failed, 1)
	}
	if attempts > 1 {
		atomic.AddInt64(&s.retries, int64(attempts-1))
	}
}

// Summaries returns one summary per observed stage, sorted by stage name
func (r *Recorder) Summaries() []StageSummary {
	r.mu.RLock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]StageSummary, 0, len(names))
	for _, name := range names {
		s := r.stage(name)
		out = append(out, StageSummary{
			Stage:     name,
			Succeeded: atomic.LoadInt64(&s.succeeded),
			Failed:    atomic.LoadInt64(&s.failed),
			Retries:   atomic.LoadInt64(&s.retries),
			Latency:   s.latency.GetSummary(),
		})
	}
	return out
}
