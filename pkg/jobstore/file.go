package jobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"media-pipeline-go/pkg/job"
)

const jobFileSuffix = ".json"

// FileStore keeps one JSON document per job in a directory
type FileStore struct {
	dir    string
	logger *zap.Logger
	// mu serializes writers; readers rely on atomic renames
	mu sync.Mutex
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job directory %s: %w", dir, err)
	}

	logger.Info("File job store initialized", zap.String("directory", dir))
	return &FileStore{dir: dir, logger: logger}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+jobFileSuffix)
}

// Save writes the document to a temp file and renames it over the old one.
// The terminal check runs under the writer lock.
func (f *FileStore) Save(ctx context.Context, j *job.Job) error {
	if err := validateID(j.ID); err != nil {
		return err
	}
	data, err := encode(j)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if old, err := f.Get(ctx, j.ID); err == nil && old.IsTerminal() {
		return finished(j.ID, old.Status)
	}

	tmp, err := os.CreateTemp(f.dir, ".job-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write job %s: %w", j.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write job %s: %w", j.ID, err)
	}
	if err := os.Rename(tmp.Name(), f.path(j.ID)); err != nil {
		return fmt.Errorf("failed to commit job %s: %w", j.ID, err)
	}

	f.logger.Debug("Saved job", zap.String("job_id", j.ID), zap.String("status", string(j.Status)))
	return nil
}

// Get implements Store
func (f *FileStore) Get(ctx context.Context, id string) (*job.Job, error) {
	if err := validateID(id); err != nil {
		return nil, notFound(id)
	}

	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}
	return decode(data)
}

// Delete implements Store
func (f *FileStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return notFound(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(id)
		}
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}

	f.logger.Debug("Deleted job", zap.String("job_id", id))
	return nil
}

// List reads every document in the directory. Unreadable files are skipped.
func (f *FileStore) List(ctx context.Context, owner string) ([]*job.Job, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	out := make([]*job.Job, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, jobFileSuffix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			f.logger.Warn("Failed to read job file", zap.String("file", name), zap.Error(err))
			continue
		}
		j, err := decode(data)
		if err != nil {
			f.logger.Warn("Failed to decode job file", zap.String("file", name), zap.Error(err))
			continue
		}
		if owner != "" && j.Owner != owner {
			continue
		}
		out = append(out, j)
	}

	sortNewestFirst(out)
	return out, nil
}

// Close implements Store
func (f *FileStore) Close() error {
	return nil
}
