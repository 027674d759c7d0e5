package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrBlobNotFound is returned by a Source when a key has no blob.
var ErrBlobNotFound = errors.New("template blob not found")

// Source fetches template blobs by key.
type Source interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// DirSource reads blobs from a local directory.
type DirSource struct {
	Dir string
}

func (s DirSource) Get(_ context.Context, key string) ([]byte, error) {
	if !filepath.IsLocal(key) {
		return nil, fmt.Errorf("invalid template key %q", key)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

// MinioSource reads blobs from an S3-compatible bucket.
type MinioSource struct {
	client *minio.Client
	bucket string
}

// NewMinioSource connects to endpoint with static credentials.
func NewMinioSource(endpoint, bucket, accessKey, secretKey string, useSSL bool) (*MinioSource, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinioSource{client: client, bucket: bucket}, nil
}

func (s *MinioSource) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, err
	}
	return data, nil
}
