/**
 * @description
 * This package stores receipt images in an S3-compatible bucket. Images are
 * written once at upload time and read back when a pending verification is
 * re-driven through extraction, so the store needs only Put, Get and Delete.
 *
 * A store constructed without credentials is disabled: Put and Get return
 * ErrNotConfigured and callers degrade accordingly.
 *
 * @dependencies
 * - github.com/aws/aws-sdk-go-v2: S3 client, static credentials provider.
 */
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotConfigured indicates the store was built without S3 credentials.
var ErrNotConfigured = errors.New("object storage not configured")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Store persists receipt images in an S3-compatible bucket.
type Store struct {
	cfg    S3Config
	client s3Client
}

// New creates a receipt image store. When the bucket or credentials are empty
// the store is disabled rather than failing construction.
func New(cfg S3Config) *Store {
	s := &Store{cfg: cfg}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		s.client = newS3Client(cfg)
	}
	return s
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether the store can reach a bucket.
func (s *Store) Enabled() bool {
	return s.client != nil
}

// Put writes an image under the given key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}
	return nil
}

// Get reads an image back by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object body: %w", err)
	}
	return data, nil
}

// Delete removes an image. Used when an upload transaction fails after the
// image was already written.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete s3 object: %w", err)
	}
	return nil
}
