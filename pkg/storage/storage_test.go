package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"media-pipeline-go/pkg/config"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(config.StorageConfig{Bucket: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "jobs/abc/", JobPrefix("abc"))
	assert.Equal(t, "jobs/abc/images/seq_002.png", ArtifactKey("abc", "images", 2, ".png"))
	assert.Equal(t, "jobs/abc/video/final.mp4", JobArtifactKey("abc", "video", "final.mp4"))
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	obj, err := s.PutObject(ctx, "jobs/a/images/seq_000.png", strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)

	// retries overwrite rather than append
	obj, err = s.PutObject(ctx, "jobs/a/images/seq_000.png", strings.NewReader("second!"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), obj.Size)

	dest := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, s.DownloadObject(ctx, "jobs/a/images/seq_000.png", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "second!", string(data))

	src := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))
	_, err = s.UploadObject(ctx, src, "jobs/a/audio/seq_000.mp3")
	require.NoError(t, err)
	_, err = s.PutObject(ctx, "jobs/b/images/seq_000.png", strings.NewReader("other job"))
	require.NoError(t, err)

	objects, err := s.ListObjects(ctx, JobPrefix("a"))
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "jobs/a/audio/seq_000.mp3", objects[0].Key)
	assert.Equal(t, "jobs/a/images/seq_000.png", objects[1].Key)

	n, err := s.DeletePrefix(ctx, JobPrefix("a"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetObjectMetadata(ctx, "jobs/a/images/seq_000.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	remaining, err := s.ListObjects(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "jobs/b/images/seq_000.png", remaining[0].Key)
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	s := newLocal(t)
	_, err := s.PutObject(context.Background(), "../outside.txt", strings.NewReader("x"))
	require.Error(t, err)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, StorageBackendLocal, storageErr.Backend)
}

func TestLocalStorageListMissingPrefix(t *testing.T) {
	objects, err := newLocal(t).ListObjects(context.Background(), "jobs/none/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.GetObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.HeadObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.ListObjectsV2Output), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.DeleteObjectsOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAWSStoragePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3)
	s := NewAWSStorageWithClient(client, "media", "/outputs/", zap.NewNop())

	client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "media" && aws.ToString(in.Key) == "outputs/jobs/a/video/final.mp4"
	})).Return(&s3.PutObjectOutput{ETag: aws.String(`"abc"`)}, nil)

	obj, err := s.PutObject(ctx, "jobs/a/video/final.mp4", bytes.NewReader([]byte("mp4")))
	require.NoError(t, err)
	assert.Equal(t, "abc", obj.ETag)
	assert.Equal(t, "s3://media/outputs/jobs/a/video/final.mp4", s.Location("jobs/a/video/final.mp4"))

	client.AssertExpectations(t)
}

func TestAWSStorageDeletePrefix(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3)
	s := NewAWSStorageWithClient(client, "media", "", zap.NewNop())

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Prefix) == "jobs/a/"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("jobs/a/images/seq_000.png"), Size: aws.Int64(10)},
			{Key: aws.String("jobs/a/"), Size: aws.Int64(0)},
			{Key: aws.String("jobs/a/audio/seq_000.mp3"), Size: aws.Int64(20)},
		},
	}, nil)
	client.On("DeleteObjects", ctx, mock.MatchedBy(func(in *s3.DeleteObjectsInput) bool {
		return len(in.Delete.Objects) == 2
	})).Return(&s3.DeleteObjectsOutput{}, nil)

	n, err := s.DeletePrefix(ctx, JobPrefix("a"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	client.AssertExpectations(t)
}

func TestAWSStorageMapsMissingKeys(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3)
	s := NewAWSStorageWithClient(client, "media", "", zap.NewNop())

	client.On("HeadObject", ctx, mock.Anything).Return(nil, &types.NotFound{})
	client.On("GetObject", ctx, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := s.GetObjectMetadata(ctx, "jobs/a/video/final.mp4")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	err = s.DownloadObject(ctx, "jobs/a/video/final.mp4", filepath.Join(t.TempDir(), "v.mp4"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func TestAWSStorageDownload(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3)
	s := NewAWSStorageWithClient(client, "media", "", zap.NewNop())

	client.On("GetObject", ctx, mock.Anything).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("bytes"))}, nil)

	dest := filepath.Join(t.TempDir(), "nested", "v.mp4")
	require.NoError(t, s.DownloadObject(ctx, "jobs/a/video/final.mp4", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))
}
