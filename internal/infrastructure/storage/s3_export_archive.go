// Package storage archives generated exports in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// DefaultExportPrefix is used when no object key prefix is configured
const DefaultExportPrefix = "exports"

// S3API is the part of *s3.Client the archive uses
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3ExportArchive stores export files under <prefix>/<tenant>/<date>/<file>
type S3ExportArchive struct {
	client    S3API
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	now       func() time.Time
	logger    *zap.Logger
}

// S3ExportArchiveOption configures an S3ExportArchive
type S3ExportArchiveOption func(*S3ExportArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3ExportArchiveOption {
	return func(a *S3ExportArchive) {
		a.logger = logger
	}
}

// WithClock overrides the clock used to date object keys
func WithClock(now func() time.Time) S3ExportArchiveOption {
	return func(a *S3ExportArchive) {
		a.now = now
	}
}

// NewS3ExportArchive builds an archive from configuration. Static credentials
// are used when both keys are set; otherwise the default AWS chain applies.
func NewS3ExportArchive(ctx context.Context, cfg config.S3Config, opts ...S3ExportArchiveOption) (*S3ExportArchive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("export archive bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(cfg.Endpoint))
		}
	})

	a := newArchive(client, cfg.Bucket, cfg.Prefix, opts...)
	a.presigner = s3.NewPresignClient(client)
	return a, nil
}

// NewS3ExportArchiveWithClient builds an archive over an existing client.
// DownloadURL is unavailable on archives built this way.
func NewS3ExportArchiveWithClient(client S3API, bucket, prefix string, opts ...S3ExportArchiveOption) *S3ExportArchive {
	return newArchive(client, bucket, prefix, opts...)
}

func newArchive(client S3API, bucket, prefix string, opts ...S3ExportArchiveOption) *S3ExportArchive {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultExportPrefix
	}
	a := &S3ExportArchive{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

// EnsureBucket creates the bucket if it doesn't exist
func (a *S3ExportArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("creating export archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectKey returns the key an export named fileName would be stored under.
// A nil tenant files the export under "all".
func (a *S3ExportArchive) ObjectKey(tenantID *uuid.UUID, fileName string) string {
	scope := "all"
	if tenantID != nil {
		scope = tenantID.String()
	}
	return path.Join(a.prefix, scope, a.now().UTC().Format("2006/01/02"), path.Base(fileName))
}

// Archive uploads one finished export and returns its object key
func (a *S3ExportArchive) Archive(ctx context.Context, tenantID *uuid.UUID, fileName, contentType string, data []byte) (string, error) {
	if fileName == "" {
		return "", errors.New("file name is required")
	}
	key := a.ObjectKey(tenantID, fileName)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}
	a.logger.Info("export archived",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return key, nil
}

// DownloadURL presigns a GET for an archived export
func (a *S3ExportArchive) DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	if a.presigner == nil {
		return "", errors.New("presigning is not configured")
	}
	if expiresIn <= 0 {
		expiresIn = 15 * time.Minute
	}
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return req.URL, nil
}

// Bucket returns the bucket name
func (a *S3ExportArchive) Bucket() string {
	return a.bucket
}
