// Package s3store keeps settings documents as objects in an S3 bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/settings"
)

// Client is the subset of the S3 API the store uses (allows mocking).
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the bucket holding the documents (required)
	Bucket string

	// Prefix is prepended to every settings name, e.g. "settings/"
	Prefix string

	// Region is the AWS region (e.g., "us-east-1")
	// If empty, uses AWS_REGION environment variable or AWS config file
	Region string

	// AWSConfig is an optional pre-configured AWS config
	// If provided, Region is ignored
	AWSConfig *aws.Config
}

// Store implements settings.Store on S3.
type Store struct {
	client Client
	bucket string
	prefix string
}

var _ settings.Store = (*Store)(nil)

// New creates a Store with a client built from cfg.
//
// Usage:
//
//	store, err := s3store.New(ctx, s3store.Config{Bucket: "my-app", Prefix: "settings"})
func New(ctx context.Context, cfg Config) (*Store, error) {
	var awsConfig aws.Config
	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		var err error
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %w", classify.ErrInvalidConfiguration, err)
		}
	}
	return NewWithClient(s3.NewFromConfig(awsConfig), cfg.Bucket, cfg.Prefix)
}

// NewWithClient creates a Store using an existing client.
func NewWithClient(client Client, bucket, prefix string) (*Store, error) {
	if client == nil {
		return nil, classify.NewInvalidConfigurationError("s3 client cannot be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, classify.NewInvalidConfigurationError("bucket cannot be empty")
	}
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *Store) Kind() string { return "s3" }

// Key returns the object key of a settings name.
func (s *Store) Key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *Store) Load(ctx context.Context, name string) ([]byte, error) {
	key := s.Key(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, settings.NewNotFoundError(name)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, name string, data []byte) error {
	key := s.Key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.Key(name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func contentType(name string) string {
	if settings.EncodingFor(path.Base(name)) == settings.EncodingYAML {
		return "application/yaml"
	}
	return "application/json"
}
