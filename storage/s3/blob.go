// Package s3 stores document bytes in an S3 compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

const (
	DefaultPresignTTL     = 15 * time.Minute
	DefaultMaxBlobSize    = 64 << 20
	defaultUploadTimeout  = 2 * time.Minute
	defaultRequestTimeout = 30 * time.Second
)

var (
	// ErrBucketRequired is returned when no bucket name is configured.
	ErrBucketRequired = errors.New("S3 bucket name not set")

	// ErrRegionRequired is returned when no region is configured.
	ErrRegionRequired = errors.New("AWS region not set")

	// ErrClientRequired is returned when a nil client is provided.
	ErrClientRequired = errors.New("S3 client required")
)

// API is the subset of *s3.Client the blob store calls.
type API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner signs download URLs. *s3.PresignClient implements it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config describes the bucket and credentials. Empty credentials fall back
// to the default AWS credential chain.
type Config struct {
	Bucket       string
	Region       string
	Prefix       string
	Endpoint     string // Custom endpoint for S3 compatible stores
	UsePathStyle bool
	AccessKey    string
	SecretKey    string
	PresignTTL   time.Duration
}

// BlobStore implements storage.BlobStore on S3.
type BlobStore struct {
	api        API
	uploader   *manager.Uploader
	presigner  Presigner
	bucket     string
	region     string
	prefix     string
	presignTTL time.Duration
	maxSize    int
	logger     *slog.Logger
}

var (
	_ storage.BlobStore = (*BlobStore)(nil)
	_ storage.BlobSizer = (*BlobStore)(nil)
)

// Option configures a BlobStore.
type Option func(*BlobStore) error

// WithPrefix stores objects under prefix.
func WithPrefix(prefix string) Option {
	return func(b *BlobStore) error {
		b.prefix = prefix
		return nil
	}
}

// WithRegion sets the region used in unsigned object URLs.
func WithRegion(region string) Option {
	return func(b *BlobStore) error {
		b.region = region
		return nil
	}
}

// WithPresigner makes URL return presigned download links valid for ttl.
func WithPresigner(p Presigner, ttl time.Duration) Option {
	return func(b *BlobStore) error {
		b.presigner = p
		if ttl > 0 {
			b.presignTTL = ttl
		}
		return nil
	}
}

// WithMaxBlobSize caps the size of stored blobs.
func WithMaxBlobSize(n int) Option {
	return func(b *BlobStore) error {
		if n <= 0 {
			return fmt.Errorf("max blob size must be positive, got %d", n)
		}
		b.maxSize = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *BlobStore) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// New connects to the bucket described by cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if cfg.Region == "" {
		return nil, ErrRegionRequired
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	opts = append([]Option{
		WithRegion(cfg.Region),
		WithPrefix(cfg.Prefix),
		WithPresigner(s3.NewPresignClient(client), cfg.PresignTTL),
	}, opts...)
	return NewWithClient(client, cfg.Bucket, opts...)
}

// NewWithClient creates a BlobStore on an existing client.
func NewWithClient(api API, bucket string, opts ...Option) (*BlobStore, error) {
	if api == nil {
		return nil, ErrClientRequired
	}
	if bucket == "" {
		return nil, ErrBucketRequired
	}

	b := &BlobStore{
		api:        api,
		uploader:   manager.NewUploader(api),
		bucket:     bucket,
		presignTTL: DefaultPresignTTL,
		maxSize:    DefaultMaxBlobSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "s3-blobs", "bucket", bucket)
	return b, nil
}

func (b *BlobStore) key(handle core.BlobHandle) string {
	return b.prefix + string(handle)
}

// Store uploads data under a fresh handle.
func (b *BlobStore) Store(ctx context.Context, filename, mimeType string, data []byte) (core.BlobHandle, error) {
	if len(data) > b.maxSize {
		return "", fmt.Errorf("%w: %s exceeds %s", storage.ErrBlobTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(b.maxSize)))
	}

	handle := core.BlobHandle(uuid.NewString())
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	uctx, cancel := context.WithTimeout(ctx, defaultUploadTimeout)
	defer cancel()

	_, err := b.uploader.Upload(uctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(handle)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
		Metadata:    map[string]string{"filename": filename},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	b.logger.Debug("blob stored", "handle", handle, "size", len(data))
	return handle, nil
}

// Get downloads the bytes behind handle.
func (b *BlobStore) Get(ctx context.Context, handle core.BlobHandle) ([]byte, error) {
	gctx, cancel := context.WithTimeout(ctx, defaultUploadTimeout)
	defer cancel()

	resp, err := b.api.GetObject(gctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(handle)),
	})
	if err != nil {
		return nil, translate(err, handle)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Size returns the stored size of handle.
func (b *BlobStore) Size(ctx context.Context, handle core.BlobHandle) (int64, error) {
	hctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	resp, err := b.api.HeadObject(hctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(handle)),
	})
	if err != nil {
		return 0, translate(err, handle)
	}
	return aws.ToInt64(resp.ContentLength), nil
}

// Delete removes handle. Deleting a missing object succeeds.
func (b *BlobStore) Delete(ctx context.Context, handle core.BlobHandle) error {
	dctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	_, err := b.api.DeleteObject(dctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(handle)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// URL returns a download URL: presigned when a presigner is configured,
// otherwise the virtual-hosted object URL.
func (b *BlobStore) URL(ctx context.Context, handle core.BlobHandle) (string, error) {
	if b.presigner != nil {
		req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(handle)),
		}, s3.WithPresignExpires(b.presignTTL))
		if err != nil {
			return "", fmt.Errorf("presign %s: %w", handle, err)
		}
		return req.URL, nil
	}

	host := b.bucket + ".s3.amazonaws.com"
	if b.region != "" {
		host = fmt.Sprintf("%s.s3.%s.amazonaws.com", b.bucket, b.region)
	}
	return "https://" + host + "/" + strings.TrimPrefix(b.key(handle), "/"), nil
}

// translate maps missing-object errors to storage.ErrNotFound.
func translate(err error, handle core.BlobHandle) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: blob %s", storage.ErrNotFound, handle)
	}
	return fmt.Errorf("s3 request failed: %w", err)
}
