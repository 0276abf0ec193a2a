package jobstore

import (
	"context"
	"sync"

	"media-pipeline-go/pkg/job"
)

// MemoryStore keeps jobs in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*job.Job)}
}

// Save implements Store
func (m *MemoryStore) Save(ctx context.Context, j *job.Job) error {
	if err := validateID(j.ID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.jobs[j.ID]; ok && old.IsTerminal() {
		return finished(j.ID, old.Status)
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, id string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, notFound(id)
	}
	return j.Clone(), nil
}

// Delete implements Store
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return notFound(id)
	}
	delete(m.jobs, id)
	return nil
}

// List implements Store
func (m *MemoryStore) List(ctx context.Context, owner string) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if owner != "" && j.Owner != owner {
			continue
		}
		out = append(out, j.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// Close implements Store
func (m *MemoryStore) Close() error {
	return nil
}
