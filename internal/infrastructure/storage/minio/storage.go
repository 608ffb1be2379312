package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/autofund-client/internal/infrastructure/resilience"
)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	BasePath        string
}

// Storage keeps downloaded reports in an S3-compatible bucket.
type Storage struct {
	client   *minio.Client
	bucket   string
	basePath string
	endpoint string
	useSSL   bool
}

// New connects and makes sure the bucket exists, retrying startup
// failures with the given executor.
func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty MinIO endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("empty MinIO bucket")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	err = executor.Execute(ctx, "minio.ensure_bucket", func(ctx context.Context, _ int) error {
		return ensureBucket(ctx, client, cfg.Bucket)
	}, func(err error) resilience.ErrorClassification {
		retryable := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: true}
	})
	if err != nil {
		return nil, fmt.Errorf("init MinIO: %w", err)
	}

	return &Storage{
		client:   client,
		bucket:   cfg.Bucket,
		basePath: normalizeBase(cfg.BasePath),
		endpoint: cfg.Endpoint,
		useSSL:   cfg.UseSSL,
	}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func normalizeBase(base string) string {
	base = strings.Trim(base, "/")
	if base != "" {
		base += "/"
	}
	return base
}

func objectName(basePath, key string) (string, error) {
	name := path.Base(path.Clean("/" + strings.TrimSpace(key)))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return basePath + name, nil
}

// Save uploads the report and returns an s3-style location.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader, size int64) (string, error) {
	name, err := objectName(s.basePath, key)
	if err != nil {
		return "", err
	}
	if size <= 0 {
		size = -1
	}
	if _, err := s.client.PutObject(ctx, s.bucket, name, data, size, minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, name), nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := objectName(s.basePath, key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if resp := minio.ToErrorResponse(err); resp.Code == minio.NoSuchKey {
			return nil, fmt.Errorf("file not found: %w", err)
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return obj, nil
}
