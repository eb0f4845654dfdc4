// Package s3upload mirrors run artifacts (the cleaned table and quarantine
// files) to an S3 bucket.
package s3upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the configuration for S3 uploads.
type Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string // Optional: for S3-compatible endpoints
	AccessKeyID     string // Optional: static credentials
	SecretAccessKey string
}

// putter is the subset of the S3 client used here.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Adapter struct {
	client putter
	bucket string
	prefix string
}

// New builds an S3 client from the default AWS credential chain, optionally
// overridden by static credentials.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if err := ValidateEndpoint(cfg.Endpoint); err != nil {
		return nil, err
	}
	var configOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		configOpts = append(configOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return newWithClient(s3.NewFromConfig(awsCfg, clientOpts...), cfg.Bucket, cfg.Prefix), nil
}

func newWithClient(c putter, bucket, prefix string) *Adapter {
	return &Adapter{client: c, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Upload stores localPath under <prefix>/<runID>/<basename> and returns the
// s3:// URI.
func (a *Adapter) Upload(ctx context.Context, runID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := a.key(runID, localPath)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

func (a *Adapter) key(runID, localPath string) string {
	return path.Join(a.prefix, runID, filepath.Base(localPath))
}
