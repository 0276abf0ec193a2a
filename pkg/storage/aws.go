package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"media-pipeline-go/pkg/config"
)

// deleteBatchSize is the DeleteObjects API limit
const deleteBatchSize = 1000

// S3API is the subset of the S3 client used by AWSStorage
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// AWSStorage implements Storage on S3 or an S3 compatible service
type AWSStorage struct {
	client    S3API
	bucket    string
	directory string
	logger    *zap.Logger
}

// NewAWSStorage creates a new AWS storage instance
func NewAWSStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*AWSStorage, error) {
	if cfg.Bucket == "" {
		return nil, NewStorageError("aws_config", "", StorageBackendAWS, fmt.Errorf("bucket is required"))
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	if cfg.AWSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("aws_config", "", StorageBackendAWS, err)
	}

	// Override endpoint if specified (for S3-compatible services like R2 or MinIO)
	s3Options := []func(*s3.Options){}
	if cfg.AWSEndpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
			o.UsePathStyle = true
		})
	}

	logger.Info("AWS storage initialized",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.AWSRegion),
		zap.String("profile", cfg.AWSProfile),
		zap.String("endpoint", cfg.AWSEndpoint))

	return NewAWSStorageWithClient(s3.NewFromConfig(awsConfig, s3Options...), cfg.Bucket, cfg.Directory, logger), nil
}

// NewAWSStorageWithClient wraps an existing S3 client
func NewAWSStorageWithClient(client S3API, bucket, directory string, logger *zap.Logger) *AWSStorage {
	return &AWSStorage{
		client:    client,
		bucket:    bucket,
		directory: strings.Trim(directory, "/"),
		logger:    logger,
	}
}

func (a *AWSStorage) fullKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if a.directory == "" {
		return key
	}
	return path.Join(a.directory, key)
}

func (a *AWSStorage) relativeKey(fullKey string) string {
	if a.directory == "" {
		return fullKey
	}
	return strings.TrimPrefix(fullKey, a.directory+"/")
}

// PutObject uploads body to key. PutObject overwrites by default.
func (a *AWSStorage) PutObject(ctx context.Context, key string, body io.Reader) (*Object, error) {
	fullKey := a.fullKey(key)

	a.logger.Debug("Uploading to S3",
		zap.String("bucket", a.bucket),
		zap.String("key", fullKey))

	output, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(fullKey),
		Body:   body,
	})
	if err != nil {
		return nil, NewStorageError("put_object", key, StorageBackendAWS, err)
	}

	obj := &Object{Key: key}
	if output.ETag != nil {
		obj.ETag = strings.Trim(*output.ETag, `"`)
	}

	return obj, nil
}

// UploadObject uploads a local file to S3
func (a *AWSStorage) UploadObject(ctx context.Context, localPath, key string) (*Object, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, NewStorageError("upload_object", localPath, StorageBackendAWS, err)
	}
	defer file.Close()

	obj, err := a.PutObject(ctx, key, file)
	if err != nil {
		return nil, err
	}
	if info, statErr := file.Stat(); statErr == nil {
		obj.Size = info.Size()
	}

	a.logger.Info("Uploaded to S3",
		zap.String("local", localPath),
		zap.String("bucket", a.bucket),
		zap.String("key", a.fullKey(key)))

	return obj, nil
}

// DownloadObject downloads an object from S3 to local path
func (a *AWSStorage) DownloadObject(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return NewStorageError("download_object", localPath, StorageBackendAWS, err)
	}

	output, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.fullKey(key)),
	})
	if err != nil {
		return NewStorageError("download_object", key, StorageBackendAWS, a.mapNotFound(err))
	}
	defer output.Body.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return NewStorageError("download_object", localPath, StorageBackendAWS, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, output.Body); err != nil {
		return NewStorageError("download_object", key, StorageBackendAWS, err)
	}

	a.logger.Debug("Downloaded S3 object",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.String("local", localPath))

	return nil
}

// GetObjectMetadata gets metadata for a single object
func (a *AWSStorage) GetObjectMetadata(ctx context.Context, key string) (*Object, error) {
	output, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.fullKey(key)),
	})
	if err != nil {
		return nil, NewStorageError("get_object_metadata", key, StorageBackendAWS, a.mapNotFound(err))
	}

	obj := &Object{Key: key}
	if output.ContentLength != nil {
		obj.Size = *output.ContentLength
	}
	if output.LastModified != nil {
		obj.Modified = *output.LastModified
	}
	if output.ETag != nil {
		obj.ETag = strings.Trim(*output.ETag, `"`)
	}

	return obj, nil
}

// ListObjects lists objects under prefix using the V2 paginator
func (a *AWSStorage) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	fullPrefix := a.fullKey(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(fullPrefix, "/") {
		fullPrefix += "/"
	}

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, NewStorageError("list_objects", a.bucket+"/"+fullPrefix, StorageBackendAWS, err)
		}

		for _, item := range page.Contents {
			if item.Key == nil || strings.HasSuffix(*item.Key, "/") {
				continue
			}

			obj := Object{Key: a.relativeKey(*item.Key)}
			if item.Size != nil {
				obj.Size = *item.Size
			}
			if item.LastModified != nil {
				obj.Modified = *item.LastModified
			}
			if item.ETag != nil {
				obj.ETag = strings.Trim(*item.ETag, `"`)
			}
			objects = append(objects, obj)
		}
	}

	a.logger.Debug("Listed S3 objects",
		zap.Int("count", len(objects)),
		zap.String("bucket", a.bucket),
		zap.String("prefix", fullPrefix))

	return objects, nil
}

// DeletePrefix removes every object under prefix in batches
func (a *AWSStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects, err := a.ListObjects(ctx, prefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(objects); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(objects) {
			end = len(objects)
		}

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(a.fullKey(obj.Key))})
		}

		output, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, NewStorageError("delete_prefix", prefix, StorageBackendAWS, err)
		}
		if len(output.Errors) > 0 {
			first := output.Errors[0]
			return deleted, NewStorageError("delete_prefix", prefix, StorageBackendAWS,
				fmt.Errorf("%d objects not deleted, first %s: %s",
					len(output.Errors), aws.ToString(first.Key), aws.ToString(first.Message)))
		}
		deleted += len(ids)
	}

	a.logger.Info("Deleted S3 objects",
		zap.String("bucket", a.bucket),
		zap.String("prefix", prefix),
		zap.Int("count", deleted))

	return deleted, nil
}

// Location returns the s3:// URI of a key
func (a *AWSStorage) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", a.bucket, a.fullKey(key))
}

func (a *AWSStorage) mapNotFound(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	return err
}

// Close closes any resources used by the storage implementation
func (a *AWSStorage) Close() error {
	a.logger.Debug("Closing AWS storage")
	return nil
}
