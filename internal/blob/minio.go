package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures the S3 compatible backend.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStore writes objects to a single bucket through minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

var _ Store = (*MinioStore)(nil)

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, opts Options, log *slog.Logger) (*MinioStore, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("blob endpoint is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("blob bucket is required")
	}
	if log == nil {
		log = slog.Default()
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			// another replica may have created it in the meantime
			if resp := minio.ToErrorResponse(err); resp.Code != "BucketAlreadyOwnedByYou" {
				return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
			}
		}
		log.Info("created blob bucket", "bucket", opts.Bucket)
	}
	return &MinioStore{client: client, bucket: opts.Bucket, log: log}, nil
}

// Put uploads data under key tagged with contentType.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errors.New("blob key cannot be empty")
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Ping verifies the bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("ping blob store: %w", err)
	}
	return nil
}
