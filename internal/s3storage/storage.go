// Package s3storage keeps the content of streamed bulk jobs in MinIO/S3, one
// object per correlation id.
package s3storage

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/dharsanguruparan/RecordGate/internal/config"
	"github.com/dharsanguruparan/RecordGate/internal/storage"
)

const objectPrefix = "bulk/"

// Storage wraps the MinIO client and the content bucket.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init minio")
	}
	return &Storage{client: client, bucket: cfg.S3ContentBucket, region: cfg.S3Region}, nil
}

// EnsureBucket makes sure the content bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", s.bucket)
	}
	if exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	return errors.Wrapf(err, "make bucket %s", s.bucket)
}

// Put streams r into the job's object. size may be -1 when unknown; the
// client then uploads in parts.
func (s *Storage) Put(ctx context.Context, correlationID, contentType string, r io.Reader, size int64) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucket, ObjectKey(correlationID), r, size, opts)
	return errors.Wrapf(err, "upload content of %s", correlationID)
}

// Get opens the job's object for reading. The caller closes the reader.
func (s *Storage) Get(ctx context.Context, correlationID string) (io.ReadCloser, string, error) {
	key := ObjectKey(correlationID)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, "", storage.ErrNoContent
		}
		return nil, "", errors.Wrapf(err, "stat content of %s", correlationID)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", errors.Wrapf(err, "get content of %s", correlationID)
	}
	return obj, info.ContentType, nil
}

// Remove deletes the job's object.
func (s *Storage) Remove(ctx context.Context, correlationID string) error {
	key := ObjectKey(correlationID)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return storage.ErrNoContent
		}
		return errors.Wrapf(err, "stat content of %s", correlationID)
	}
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	return errors.Wrapf(err, "remove content of %s", correlationID)
}

// ObjectKey is the object name of a job's content.
func ObjectKey(correlationID string) string {
	return objectPrefix + correlationID
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
