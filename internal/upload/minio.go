package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/s/lifelessons/internal/logger"
)

type MinioConfig struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

// Minio stores images in an S3 compatible bucket that is readable by anyone.
type Minio struct {
	log    *logger.Logger
	client *minio.Client
	bucket string
	public string
}

// NewMinio connects and makes sure the bucket exists with a public read
// policy.
func NewMinio(ctx context.Context, log *logger.Logger, cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("bucket policy: %w", err)
		}
		log.Info("image bucket created", "bucket", cfg.Bucket)
	}

	public := cfg.PublicEndpoint
	if public == "" {
		scheme := "http://"
		if cfg.UseSSL {
			scheme = "https://"
		}
		public = scheme + cfg.Endpoint
	}
	return &Minio{
		log:    log.With("component", "MinioUploader"),
		client: client,
		bucket: cfg.Bucket,
		public: strings.TrimRight(public, "/"),
	}, nil
}

func publicReadPolicy(bucket string) string {
	return `{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::` + bucket + `/*"]
		}]
	}`
}

// objectName keeps the extension so the host serves a sensible type.
func objectName(filename string) string {
	return "lessons/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
}

func (m *Minio) Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	name := objectName(filename)
	_, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		m.log.Warn("object upload failed", "object", name, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return m.public + "/" + m.bucket + "/" + name, nil
}
