// Package storage implements the archive gateway: terminal threads'
// journals and metadata records are copied to a local directory or an
// S3 bucket for retention.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client the gateway needs.
// An interface so tests can substitute a mock client.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3StorageGateway archives thread records to an S3 bucket under
// <prefix>/threads/<thread_id>/<file>.
type S3StorageGateway struct {
	client S3API
	bucket string
	prefix string
}

// S3Config holds S3 archive gateway configuration
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

// NewS3StorageGateway creates an S3-backed archive gateway.
func NewS3StorageGateway(ctx context.Context, cfg S3Config) (*S3StorageGateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return &S3StorageGateway{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// NewS3StorageGatewayWithClient injects a custom client. Used by tests.
func NewS3StorageGatewayWithClient(client S3API, bucket, prefix string) *S3StorageGateway {
	return &S3StorageGateway{client: client, bucket: bucket, prefix: prefix}
}

// Upload stores the body under key, overwriting any prior object.
func (g *S3StorageGateway) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.buildKey(key)),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3://%s: %w", key, g.bucket, err)
	}
	return nil
}

// Exists reports whether an object is already archived.
func (g *S3StorageGateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.buildKey(key)),
	})
	if err != nil {
		var notFound interface{ ErrorCode() string }
		if errors.As(err, &notFound) {
			code := notFound.ErrorCode()
			if code == "NotFound" || code == "NoSuchKey" {
				return false, nil
			}
		}
		return false, fmt.Errorf("head %s in s3://%s: %w", key, g.bucket, err)
	}
	return true, nil
}

func (g *S3StorageGateway) buildKey(key string) string {
	if g.prefix == "" {
		return key
	}
	return strings.TrimSuffix(g.prefix, "/") + "/" + key
}
