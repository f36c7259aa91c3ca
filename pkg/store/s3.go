package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps each attribute in its own object at
// "<prefix><entity>/<key>".
//
// Example usage:
//
//	client := store.NewS3Client(store.S3ClientConfig{Region: "eu-west-1"})
//	attrs := store.NewS3Store(client, "ihi-attributes", "prod/")
type S3Store struct {
	client S3API
	bucket string
	prefix string
	closed atomic.Bool
}

// NewS3Store creates an S3-backed Store.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// S3ClientConfig configures NewS3Client.
type S3ClientConfig struct {
	Region string

	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint string

	// UsePathStyle addresses buckets as path segments instead of subdomains.
	UsePathStyle bool
}

// NewS3Client builds an S3 client with static credentials taken from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.
func NewS3Client(cfg S3ClientConfig) *s3.Client {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id := os.Getenv("AWS_ACCESS_KEY_ID")
		secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, errors.New("store: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})

	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  aws.NewCredentialsCache(creds),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (s *S3Store) objectKey(entity, key string) string {
	return s.prefix + entity + "/" + key
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, entity, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(entity, key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, keyErr("get", entity, key, ErrNotFound)
		}
		return nil, keyErr("get", entity, key, fmt.Errorf("s3 get failed: %w", err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, keyErr("get", entity, key, fmt.Errorf("s3 read failed: %w", err))
	}
	return data, nil
}

// Set implements Store.
func (s *S3Store) Set(ctx context.Context, entity, key string, value []byte) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(entity, key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return keyErr("set", entity, key, fmt.Errorf("s3 put failed: %w", err))
	}
	return nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, entity, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(entity, key)),
	})
	if err != nil && !isS3NotFound(err) {
		return keyErr("delete", entity, key, fmt.Errorf("s3 delete failed: %w", err))
	}
	return nil
}

// Close implements Store. The client has nothing to release.
func (s *S3Store) Close() error {
	s.closed.Store(true)
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
