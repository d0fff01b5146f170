// Package s3 stores submission media in an S3 compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/simple-messages/pkg/simplemessages"
)

const (
	defaultRegion = "us-east-1"
	// Media refs are never rewritten, so payloads can be cached forever.
	immutableCacheControl = "public, max-age=31536000, immutable"
)

// Config options for the S3 backend
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint points at an S3 compatible service such as MinIO.
	Endpoint     string
	UsePathStyle bool
	// PresignDuration is the lifetime of preview URLs in seconds (default 3600).
	PresignDuration int

	// KeyPrefix is prepended to every object key, e.g. "messages".
	KeyPrefix string

	// PublicBaseURL serves objects from a public bucket or CDN instead of
	// presigned URLs, e.g. "https://media.example.com".
	PublicBaseURL string

	EnableSSE    bool
	SSEAlgorithm string // AES256 or aws:kms
	SSEKMSKeyID  string

	CreateBucketIfNotExist bool
}

// Backend is a simplemessages.BlobStore backed by an S3 bucket.
type Backend struct {
	client          *s3.Client
	uploader        *manager.Uploader
	presignClient   *s3.PresignClient
	bucket          string
	presignDuration time.Duration
	config          Config
}

// New connects to the bucket described by config.
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	config = config.withDefaults()

	ctx := context.Background()
	client, err := newClient(ctx, config)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		client:          client,
		uploader:        manager.NewUploader(client),
		presignClient:   s3.NewPresignClient(client),
		bucket:          config.Bucket,
		presignDuration: time.Duration(config.PresignDuration) * time.Second,
		config:          config,
	}
	if config.CreateBucketIfNotExist {
		if err := b.ensureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return b, nil
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = defaultRegion
	}
	if c.PresignDuration <= 0 {
		c.PresignDuration = 3600
	}
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")
	c.KeyPrefix = strings.Trim(c.KeyPrefix, "/")
	return c
}

func newClient(ctx context.Context, config Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		static := credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(static))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		}
	}), nil
}

// key maps a media object key to its bucket key.
func (b *Backend) key(objectKey string) *string {
	if b.config.KeyPrefix == "" {
		return aws.String(objectKey)
	}
	return aws.String(path.Join(b.config.KeyPrefix, objectKey))
}

// StorageKey returns the bucket key for objectKey, including KeyPrefix.
func (b *Backend) StorageKey(objectKey string) string {
	return aws.ToString(b.key(objectKey))
}

// isNotFound reports whether err is an S3 missing object or bucket response.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchBucket"
}

// mapError turns a missing object into simplemessages.ErrObjectNotFound.
func mapError(op string, err error) error {
	if isNotFound(err) {
		return simplemessages.ErrObjectNotFound
	}
	return fmt.Errorf("s3 %s: %w", op, err)
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	switch {
	case err == nil:
		return nil
	case !isNotFound(err) && !strings.Contains(err.Error(), "BadRequest"):
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if b.config.Region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}
	_, err = b.client.CreateBucket(ctx, input)
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if err == nil || errors.As(err, &owned) || errors.As(err, &exists) {
		return nil
	}
	return err
}

// GetObjectMeta stats a stored payload.
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*simplemessages.ObjectMeta, error) {
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(objectKey),
	})
	if err != nil {
		return nil, mapError("head", err)
	}

	meta := &simplemessages.ObjectMeta{
		Key:         objectKey,
		Size:        aws.ToInt64(head.ContentLength),
		ContentType: aws.ToString(head.ContentType),
		UpdatedAt:   aws.ToTime(head.LastModified),
		ETag:        strings.Trim(aws.ToString(head.ETag), `"`),
		Metadata:    make(map[string]string, len(head.Metadata)+1),
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	for k, v := range head.Metadata {
		meta.Metadata[k] = v
	}
	meta.Metadata["content_type"] = meta.ContentType
	return meta, nil
}

// Upload writes a payload without a content type.
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.UploadWithParams(ctx, reader, simplemessages.UploadParams{ObjectKey: objectKey})
}

// UploadWithParams writes a payload through the multipart uploader. Objects
// are marked immutable and served inline.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params simplemessages.UploadParams) error {
	input := &s3.PutObjectInput{
		Bucket:             aws.String(b.bucket),
		Key:                b.key(params.ObjectKey),
		Body:               reader,
		CacheControl:       aws.String(immutableCacheControl),
		ContentDisposition: aws.String("inline"),
	}
	if params.MimeType != "" {
		input.ContentType = aws.String(params.MimeType)
	}
	b.applyEncryption(input)

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	return nil
}

func (b *Backend) applyEncryption(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	default:
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}
}

// GetPreviewURL returns a public URL when PublicBaseURL is set, otherwise a
// presigned URL for inline display.
func (b *Backend) GetPreviewURL(ctx context.Context, objectKey string) (string, error) {
	if base := b.config.PublicBaseURL; base != "" {
		escaped := strings.Split(aws.ToString(b.key(objectKey)), "/")
		for i := range escaped {
			escaped[i] = url.PathEscape(escaped[i])
		}
		return base + "/" + strings.Join(escaped, "/"), nil
	}

	signed, err := b.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(b.bucket),
		Key:                        b.key(objectKey),
		ResponseContentDisposition: aws.String("inline"),
	}, s3.WithPresignExpires(b.presignDuration))
	if err != nil {
		return "", fmt.Errorf("s3 presign: %w", err)
	}
	return signed.URL, nil
}

// Download opens a stored payload.
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(objectKey),
	})
	if err != nil {
		return nil, mapError("get", err)
	}
	return out.Body, nil
}

// Delete removes a payload. Deleting a missing key is not an error.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(objectKey),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}
