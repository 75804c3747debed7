package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3Storage struct {
	client *s3.Client
	config S3Config
}

type S3Config struct {
	// Bucket used for keys that are not s3:// URLs.
	Bucket string
}

func NewS3Storage(ctx context.Context, s S3Config) (Storage, error) {
	var optsFunc []func(*config.LoadOptions) error

	s3EndpointUrl, ok := os.LookupEnv("S3_ENDPOINT_URL")
	if ok {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               s3EndpointUrl,
				HostnameImmutable: true,
			}, nil
		})
		optsFunc = append(optsFunc, config.WithEndpointResolverWithOptions(resolver))
	}

	c, err := config.LoadDefaultConfig(ctx, optsFunc...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	s3Client := s3.NewFromConfig(c, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &s3Storage{
		client: s3Client,
		config: s,
	}, nil
}

// location splits an s3://bucket/key URL. Plain keys use the configured bucket.
func (s *s3Storage) location(url string) (string, string, error) {
	if rest, ok := strings.CutPrefix(url, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return "", "", fmt.Errorf("invalid S3 URL: %s", url)
		}
		return bucket, key, nil
	}
	if s.config.Bucket == "" {
		return "", "", fmt.Errorf("no bucket configured for key: %s", url)
	}
	return s.config.Bucket, strings.TrimPrefix(url, "/"), nil
}

func (s *s3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	bucket, key, err := s.location(key)
	if err != nil {
		return "", err
	}

	contentType := http.DetectContentType(data)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

func (s *s3Storage) Get(ctx context.Context, url string) ([]byte, error) {
	bucket, key, err := s.location(url)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	var buffer bytes.Buffer
	_, err = buffer.ReadFrom(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	return buffer.Bytes(), nil
}
