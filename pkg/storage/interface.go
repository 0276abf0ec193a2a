package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"media-pipeline-go/pkg/config"
)

// ErrObjectNotFound is wrapped by StorageError when a key does not exist
var ErrObjectNotFound = errors.New("object not found")

// Storage stores artifact bytes under slash separated keys. The pipeline core
// only handles the keys; bytes move through this interface.
type Storage interface {
	// PutObject writes the content of body under key, replacing any previous object
	PutObject(ctx context.Context, key string, body io.Reader) (*Object, error)

	// UploadObject copies a local file to key
	UploadObject(ctx context.Context, localPath, key string) (*Object, error)

	// DownloadObject copies the object at key to a local path
	DownloadObject(ctx context.Context, key, localPath string) error

	// GetObjectMetadata gets metadata for a single object
	GetObjectMetadata(ctx context.Context, key string) (*Object, error)

	// ListObjects lists objects whose keys start with prefix
	ListObjects(ctx context.Context, prefix string) ([]Object, error)

	// DeletePrefix removes every object under prefix and returns how many were removed
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Location renders a key as a path or URI a human or player can open
	Location(key string) string

	// Close closes any resources used by the storage implementation
	Close() error
}

// Object represents a stored artifact
type Object struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	ETag     string    `json:"etag,omitempty"`
}

// StorageBackend represents the type of storage backend
type StorageBackend string

const (
	StorageBackendAWS   StorageBackend = "aws"
	StorageBackendLocal StorageBackend = "local"
)

// String returns the string representation of StorageBackend
func (s StorageBackend) String() string {
	return string(s)
}

// StorageError represents a storage operation error
type StorageError struct {
	Operation string
	Path      string
	Backend   StorageBackend
	Err       error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [%s] during %s operation on %s: %v",
		e.Backend, e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error
func NewStorageError(operation, path string, backend StorageBackend, err error) *StorageError {
	return &StorageError{
		Operation: operation,
		Path:      path,
		Backend:   backend,
		Err:       err,
	}
}

// JobPrefix is the key prefix holding every artifact of a job
func JobPrefix(jobID string) string {
	return path.Join("jobs", jobID) + "/"
}

// ArtifactKey builds the key of a per-sequence artifact, e.g. jobs/<id>/images/seq_002.png
func ArtifactKey(jobID, folder string, index int, ext string) string {
	return path.Join("jobs", jobID, folder, fmt.Sprintf("seq_%03d%s", index, ext))
}

// JobArtifactKey builds the key of a job level artifact, e.g. jobs/<id>/video/final.mp4
func JobArtifactKey(jobID, folder, name string) string {
	return path.Join("jobs", jobID, folder, name)
}

// NewStorage creates a storage client from the application configuration
func NewStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Storage, error) {
	switch StorageBackend(cfg.Backend) {
	case StorageBackendAWS:
		return NewAWSStorage(ctx, cfg, logger)
	case StorageBackendLocal, "":
		return NewLocalStorage(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
