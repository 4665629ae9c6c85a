// Package upload ships a finished backup archive to object storage.
package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"jirabackup/pkg/config"
	"jirabackup/pkg/logger"
)

// Uploader copies a local file somewhere durable and returns its location
type Uploader interface {
	Upload(ctx context.Context, file string) (string, error)
}

// PutObjectAPI is the part of the S3 client used for uploads
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader puts archives into one bucket under an optional prefix
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger logger.Logger
}

// NewS3Uploader wraps an existing S3 client
func NewS3Uploader(client PutObjectAPI, bucket, prefix string, log logger.Logger) *S3Uploader {
	if log == nil {
		log = logger.GetLogger()
	}
	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: log,
	}
}

// FromConfig builds an S3Uploader using the default AWS credential chain.
// It returns nil when no bucket is configured.
func FromConfig(ctx context.Context, cfg *config.UploadConfig, log logger.Logger) (*S3Uploader, error) {
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return NewS3Uploader(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix, log), nil
}

// Key returns the object key a local file is stored under
func (u *S3Uploader) Key(file string) string {
	name := filepath.Base(file)
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload streams file to the bucket and returns its s3:// location
func (u *S3Uploader) Upload(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", file, err)
	}

	key := u.Key(file)
	start := time.Now()
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file, u.bucket, key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.InfoWithFields("Archive uploaded", map[string]interface{}{
		"location": location,
		"size":     humanize.IBytes(uint64(info.Size())),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	})
	return location, nil
}
