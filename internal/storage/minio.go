package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures MinioStore.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL overrides the URL prefix used for public links, e.g. a CDN
	// in front of the bucket. Defaults to <endpoint>/<bucket>.
	PublicBaseURL string
}

// MinioStore stores objects in an S3-compatible bucket. The bucket must allow
// anonymous reads so the processor can fetch uploads; see EnsureBucket.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMinioStore(opts MinioOptions) (*MinioStore, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: minio endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create minio client: %w", err)
	}
	baseURL := strings.TrimRight(opts.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + opts.Bucket
	}
	return &MinioStore{client: client, bucket: opts.Bucket, baseURL: baseURL}, nil
}

const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// EnsureBucket creates the bucket when missing and grants anonymous GetObject.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("storage: create bucket: %w", err)
		}
	}
	if err := s.client.SetBucketPolicy(ctx, s.bucket, fmt.Sprintf(publicReadPolicy, s.bucket)); err != nil {
		return fmt.Errorf("storage: set bucket policy: %w", err)
	}
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if size <= 0 {
		size = -1
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.client.PutObject(ctx, s.bucket, cleanKey, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return cleanKey, nil
}

func (s *MinioStore) PublicURL(storedPath string) string {
	cleanKey, err := sanitizeKey(storedPath)
	if err != nil {
		return ""
	}
	return s.baseURL + "/" + cleanKey
}

func (s *MinioStore) Delete(ctx context.Context, storedPath string) error {
	cleanKey, err := sanitizeKey(storedPath)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, cleanKey, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("storage: remove object: %w", err)
	}
	return nil
}

func (s *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("storage: list objects: %w", obj.Err)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

var _ ObjectStore = (*MinioStore)(nil)
