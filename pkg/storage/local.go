package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"media-pipeline-go/pkg/config"
)

// LocalStorage implements Storage on the local filesystem
type LocalStorage struct {
	logger   *zap.Logger
	basePath string
}

// NewLocalStorage creates a new local storage rooted at bucket/directory
func NewLocalStorage(cfg config.StorageConfig, logger *zap.Logger) (*LocalStorage, error) {
	// For local storage, we use the bucket as the base directory
	basePath := cfg.Bucket
	if cfg.Directory != "" {
		basePath = filepath.Join(basePath, cfg.Directory)
	}
	if basePath == "" {
		basePath = "."
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, NewStorageError("init", basePath, StorageBackendLocal, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, NewStorageError("init", abs, StorageBackendLocal, err)
	}

	return &LocalStorage{
		logger:   logger,
		basePath: abs,
	}, nil
}

// resolve maps a key to a path inside the base directory
func (l *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}

// PutObject writes body to key through a temp file and rename
func (l *LocalStorage) PutObject(ctx context.Context, key string, body io.Reader) (*Object, error) {
	destPath, err := l.resolve(key)
	if err != nil {
		return nil, NewStorageError("put_object", key, StorageBackendLocal, err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, NewStorageError("put_object", destPath, StorageBackendLocal, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".upload-*")
	if err != nil {
		return nil, NewStorageError("put_object", destPath, StorageBackendLocal, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return nil, NewStorageError("put_object", key, StorageBackendLocal, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, NewStorageError("put_object", key, StorageBackendLocal, err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return nil, NewStorageError("put_object", key, StorageBackendLocal, err)
	}

	l.logger.Debug("Stored local object", zap.String("key", key), zap.String("path", destPath))

	return l.GetObjectMetadata(ctx, key)
}

// UploadObject copies a local file into the storage directory
func (l *LocalStorage) UploadObject(ctx context.Context, localPath, key string) (*Object, error) {
	sourceFile, err := os.Open(localPath)
	if err != nil {
		return nil, NewStorageError("upload_object", localPath, StorageBackendLocal, err)
	}
	defer sourceFile.Close()

	return l.PutObject(ctx, key, sourceFile)
}

// DownloadObject copies an object to a local path
func (l *LocalStorage) DownloadObject(ctx context.Context, key, localPath string) error {
	sourcePath, err := l.resolve(key)
	if err != nil {
		return NewStorageError("download_object", key, StorageBackendLocal, err)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return NewStorageError("download_object", localPath, StorageBackendLocal, err)
	}

	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrObjectNotFound
		}
		return NewStorageError("download_object", key, StorageBackendLocal, err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(localPath)
	if err != nil {
		return NewStorageError("download_object", localPath, StorageBackendLocal, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return NewStorageError("download_object", key, StorageBackendLocal, err)
	}

	l.logger.Debug("Copied local object",
		zap.String("key", key),
		zap.String("destination", localPath))

	return nil
}

// GetObjectMetadata gets metadata for a single object
func (l *LocalStorage) GetObjectMetadata(ctx context.Context, key string) (*Object, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, NewStorageError("get_object_metadata", key, StorageBackendLocal, err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrObjectNotFound
		}
		return nil, NewStorageError("get_object_metadata", key, StorageBackendLocal, err)
	}

	return &Object{
		Key:      key,
		Size:     info.Size(),
		Modified: info.ModTime(),
	}, nil
}

// ListObjects walks the directory under prefix, sorted by key
func (l *LocalStorage) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	root := l.basePath
	if prefix != "" {
		p, err := l.resolve(prefix)
		if err != nil {
			return nil, NewStorageError("list_objects", prefix, StorageBackendLocal, err)
		}
		root = p
	}

	var objects []Object
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		objects = append(objects, Object{
			Key:      filepath.ToSlash(rel),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, NewStorageError("list_objects", root, StorageBackendLocal, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	return objects, nil
}

// DeletePrefix removes the directory tree under prefix
func (l *LocalStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects, err := l.ListObjects(ctx, prefix)
	if err != nil {
		return 0, err
	}

	root, err := l.resolve(prefix)
	if err != nil {
		return 0, NewStorageError("delete_prefix", prefix, StorageBackendLocal, err)
	}
	if err := os.RemoveAll(root); err != nil {
		return 0, NewStorageError("delete_prefix", prefix, StorageBackendLocal, err)
	}

	l.logger.Info("Deleted local objects",
		zap.String("prefix", prefix),
		zap.Int("count", len(objects)))

	return len(objects), nil
}

// Location returns the absolute filesystem path of a key
func (l *LocalStorage) Location(key string) string {
	p, err := l.resolve(key)
	if err != nil {
		return key
	}
	return p
}

// Close closes any resources used by the storage implementation
func (l *LocalStorage) Close() error {
	l.logger.Debug("Closing local storage")
	return nil
}
