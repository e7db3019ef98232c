// Package s3blob implements the domain blob interfaces on AWS SDK v2. It
// works against AWS S3 as well as compatible stores (MinIO, Cloudflare R2)
// via a custom endpoint and path-style addressing.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig describes the target object store.
type ClientConfig struct {
	// Endpoint is a custom S3-compatible endpoint. Empty means AWS S3.
	Endpoint string

	// Region is the AWS region or the provider's equivalent.
	Region string

	// Bucket is the bucket all reads and writes go to.
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL picks the scheme when Endpoint is given without one.
	UseSSL bool

	// ForcePathStyle puts the bucket in the URL path instead of the host.
	// Most non-AWS providers need this.
	ForcePathStyle bool
}

// Client holds the SDK client and the target bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds a client with static credentials for cfg. Custom endpoints and
// path-style addressing are applied as SDK options.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Health verifies connectivity and bucket access with a HeadBucket call.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close satisfies the closer shape used by the wiring layer; the SDK's HTTP
// client needs no teardown.
func (c *Client) Close() error {
	return nil
}

// S3 returns the underlying SDK client.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// withScheme prepends http:// or https:// when endpoint lacks a scheme.
func withScheme(endpoint string, useSSL bool) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
