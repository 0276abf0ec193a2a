package capability

import (
	"fmt"
	"sort"
	"sync"

	"media-pipeline-go/pkg/job"
)

// Strategy binds the backends serving one mode. It is resolved once when a
// job is submitted and stays attached to that job.
type Strategy struct {
	Mode       job.Mode
	Images     ImageGenerator
	Speech     SpeechSynthesizer
	Video      VideoComposer
	ImageStyle string
	Language   string
	Voice      string
	Width      int
	Height     int
}

// Validate checks that every stage has a backend
func (s *Strategy) Validate() error {
	switch {
	case s.Mode == "":
		return fmt.Errorf("strategy has no mode")
	case s.Images == nil:
		return fmt.Errorf("mode %s has no image generator", s.Mode)
	case s.Speech == nil:
		return fmt.Errorf("mode %s has no speech synthesizer", s.Mode)
	case s.Video == nil:
		return fmt.Errorf("mode %s has no video composer", s.Mode)
	}
	return nil
}

// Registry is the strategy table keyed by mode
type Registry struct {
	mu         sync.RWMutex
	strategies map[job.Mode]*Strategy
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[job.Mode]*Strategy)}
}

// Register adds or replaces the strategy for its mode
func (r *Registry) Register(s *Strategy) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Mode] = s
	return nil
}

// Resolve returns the strategy for mode, or ErrInvalidInput when the mode has none
func (r *Registry) Resolve(mode job.Mode) (*Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[mode]
	if !ok {
		return nil, fmt.Errorf("%w: mode %q is not configured", job.ErrInvalidInput, mode)
	}
	return s, nil
}

// Modes lists the configured modes in sorted order
func (r *Registry) Modes() []job.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modes := make([]job.Mode, 0, len(r.strategies))
	for m := range r.strategies {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}
