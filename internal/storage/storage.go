package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/apperrors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Path prefixes for stored objects
const (
	PathUserProfiles = "user-profiles"
	PathEventMedia   = "event-media"
)

// BlobStore stores binary objects and returns their public location
type BlobStore interface {
	Upload(ctx context.Context, data []byte, contentType, pathHint string) (url string, key string, err error)
	Delete(ctx context.Context, key string) error
}

// ObjectAPI is the subset of the S3 client used here
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store is a BlobStore backed by any S3-compatible service
type S3Store struct {
	client  ObjectAPI
	bucket  string
	baseURL string
}

// NewS3Store creates an S3 client with static credentials and an optional custom endpoint
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
	}

	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", endpoint).Msg("Blob storage initialized")
	return NewS3StoreWithClient(client, cfg.Bucket, baseURL), nil
}

// NewS3StoreWithClient wraps an existing client
func NewS3StoreWithClient(client ObjectAPI, bucket, baseURL string) *S3Store {
	return &S3Store{client: client, bucket: bucket, baseURL: baseURL}
}

// Upload stores data under pathHint/<uuid><ext> and returns its URL and key
func (s *S3Store) Upload(ctx context.Context, data []byte, contentType, pathHint string) (string, string, error) {
	key := ObjectKey(pathHint, contentType)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", apperrors.Storage(apperrors.BackendBlob, errors.Wrap(err, "failed to upload object"))
	}

	return s.baseURL + "/" + key, key, nil
}

// Delete removes an object by key
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperrors.Storage(apperrors.BackendBlob, errors.Wrap(err, "failed to delete object"))
	}
	return nil
}

var knownExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
}

// ObjectKey builds a fresh object key for the given prefix and content type
func ObjectKey(pathHint, contentType string) string {
	ext, ok := knownExtensions[contentType]
	if !ok {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("%s/%s%s", strings.Trim(pathHint, "/"), uuid.NewString(), ext)
}
