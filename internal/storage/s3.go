package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const minPresignExpiry = 60 * time.Second

// S3Backend stores objects in S3 or R2.
type S3Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	kind          string // "s3" or "r2"
	bucket        string
	prefix        string
	publicBaseURL string
	presignExpiry time.Duration
}

// S3Config holds the settings needed to talk to a bucket. EndpointURL is set
// for R2; PublicBaseURL switches DownloadURL from presigning to public URLs.
type S3Config struct {
	Kind            string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	EndpointURL     string
	PublicBaseURL   string
	PresignExpiry   time.Duration
}

// NewS3Backend builds the client and verifies bucket access.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
			awsconfig.WithRegion(cfg.Region),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true // R2 requires path-style addressing
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
	}

	expiry := cfg.PresignExpiry
	if expiry < minPresignExpiry {
		expiry = minPresignExpiry
	}
	kind := cfg.Kind
	if kind == "" {
		kind = "s3"
	}

	slog.Info("Object storage initialized", "backend", kind, "bucket", cfg.Bucket, "endpoint", cfg.EndpointURL)
	return &S3Backend{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		kind:          kind,
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		presignExpiry: expiry,
	}, nil
}

func (s *S3Backend) Name() string { return s.kind }

func (s *S3Backend) WriteBytes(ctx context.Context, relDir, filename string, data []byte, mimeType string) (string, error) {
	key := s.keyFor(relDir, filename)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.uriFor(key), nil
}

func (s *S3Backend) WriteFile(ctx context.Context, relDir, filename, sourcePath, mimeType string) (string, error) {
	file, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer file.Close()
	key := s.keyFor(relDir, filename)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.uriFor(key), nil
}

func (s *S3Backend) ResolveLocalPath(uri string) (string, error) {
	return "", fmt.Errorf("cannot resolve remote uri: %s", uri)
}

// DownloadURL returns the public URL when a base is configured, otherwise a
// time-limited presigned GET.
func (s *S3Backend) DownloadURL(ctx context.Context, uri string) (string, error) {
	key := s.keyFromURI(uri)
	if key == "" {
		return uri, nil
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.presignExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3Backend) keyFor(relDir, filename string) string {
	parts := []string{}
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	if relDir = strings.Trim(relDir, "/"); relDir != "" {
		parts = append(parts, relDir)
	}
	parts = append(parts, filename)
	return strings.Join(parts, "/")
}

func (s *S3Backend) uriFor(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

func (s *S3Backend) keyFromURI(uri string) string {
	if s.publicBaseURL != "" && strings.HasPrefix(uri, s.publicBaseURL+"/") {
		return strings.TrimPrefix(uri, s.publicBaseURL+"/")
	}
	if strings.HasPrefix(uri, "s3://") {
		rest := strings.TrimPrefix(uri, "s3://")
		if _, key, ok := strings.Cut(rest, "/"); ok {
			return key
		}
	}
	return ""
}
