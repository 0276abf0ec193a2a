// Package jobstore keeps the durable record of every job, one JSON document
// per job keyed by job id.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/job"
)

// Store persists jobs. Implementations must be safe for concurrent use and
// must never hand out memory shared with the caller.
type Store interface {
	// Save inserts or replaces the job record. A record that reached a
	// terminal status is never replaced; Save returns job.ErrConflict instead.
	Save(ctx context.Context, j *job.Job) error
	// Get returns job.ErrNotFound for unknown ids
	Get(ctx context.Context, id string) (*job.Job, error)
	// Delete returns job.ErrNotFound for unknown ids
	Delete(ctx context.Context, id string) error
	// List returns the jobs of owner, newest first. An empty owner lists every job.
	List(ctx context.Context, owner string) ([]*job.Job, error)
	Close() error
}

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// New creates the store selected by cfg.Backend
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		dir := cfg.Directory
		if dir == "" {
			dir = config.DefaultStoreDirectory
		}
		return NewFileStore(dir, logger)
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLiteDSN, logger)
	case BackendRedis:
		return NewRedisStoreFromConfig(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", job.ErrNotFound, id)
}

func finished(id string, status job.Status) error {
	return fmt.Errorf("%w: job %s is already %s", job.ErrConflict, id, status)
}

func validateID(id string) error {
	if id == "" || filepath.Base(id) != id || strings.ContainsAny(id, `/\:`) || id == ".." {
		return fmt.Errorf("%w: bad job id %q", job.ErrInvalidInput, id)
	}
	return nil
}

func encode(j *job.Job) ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %s: %w", j.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	if j.Artifacts == nil {
		j.Artifacts = make(map[job.Stage]map[int]job.Artifact)
	}
	if j.Progress.Stages == nil {
		j.Progress.Stages = make(map[job.Stage]job.StageCount)
	}
	return &j, nil
}

// sortNewestFirst orders by creation time descending, id as tie-break
func sortNewestFirst(jobs []*job.Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		}
		return jobs[i].ID < jobs[k].ID
	})
}
