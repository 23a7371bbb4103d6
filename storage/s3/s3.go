// Package s3 provides an S3-backed implementation of the Storage interface.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/avieira/designgen"
)

// Storage persists generated images to an S3 bucket and returns public URLs.
type Storage struct {
	client    *awss3.Client
	bucket    string
	keyPrefix string

	// publicBaseURL overrides the default virtual-hosted URL, e.g. for a
	// CloudFront distribution in front of the bucket.
	publicBaseURL string
	region        string
}

var _ designgen.Storage = (*Storage)(nil)

// Option configures the Storage.
type Option func(*Storage)

// WithKeyPrefix prepends a prefix to every object key.
func WithKeyPrefix(prefix string) Option {
	return func(s *Storage) { s.keyPrefix = strings.Trim(prefix, "/") }
}

// WithPublicBaseURL sets the base URL returned for saved objects, for
// buckets served through a CDN or custom domain.
func WithPublicBaseURL(base string) Option {
	return func(s *Storage) { s.publicBaseURL = strings.TrimRight(base, "/") }
}

// New creates an S3 storage using the default AWS credential chain.
func New(ctx context.Context, bucket string, opts ...Option) (*Storage, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s := &Storage{
		client: awss3.NewFromConfig(cfg),
		bucket: bucket,
		region: cfg.Region,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromClient creates an S3 storage from an existing client.
func NewFromClient(client *awss3.Client, bucket, region string, opts ...Option) *Storage {
	s := &Storage{
		client: client,
		bucket: bucket,
		region: region,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveFile uploads image data and returns the object's public URL.
func (s *Storage) SaveFile(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	key := s.objectKey(path)

	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.publicURL(key), nil
}

func (s *Storage) objectKey(path string) string {
	path = strings.TrimLeft(path, "/")
	if s.keyPrefix == "" {
		return path
	}
	return s.keyPrefix + "/" + path
}

func (s *Storage) publicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	if s.region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}
