package s3client

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joy-dx/gobox/dto"
)

const NetClientS3Ref dto.NetClientType = "net.client.s3"

type Middleware func(ctx context.Context, req *S3Request) error

// S3ClientConfig defines the static properties of a mirror target.
type S3ClientConfig struct {
	Region         string
	Credentials    aws.CredentialsProvider
	Middlewares    []Middleware
	ForcePathStyle bool
	Endpoint       string // optional custom endpoint, e.g. MinIO
	// Bucket is used when a request does not name one
	Bucket string
	// KeyPrefix is prepended to every object key
	KeyPrefix string
}

func DefaultS3ClientConfig(region, bucket string) S3ClientConfig {
	return S3ClientConfig{Region: region, Bucket: bucket, Middlewares: []Middleware{}}
}

func (c *S3ClientConfig) WithMiddleware(m ...Middleware) *S3ClientConfig {
	c.Middlewares = append(c.Middlewares, m...)
	return c
}

func (c *S3ClientConfig) WithEndpoint(endpoint string, forcePathStyle bool) *S3ClientConfig {
	c.Endpoint = endpoint
	c.ForcePathStyle = forcePathStyle
	return c
}

func (c *S3ClientConfig) WithCredentials(p aws.CredentialsProvider) *S3ClientConfig {
	c.Credentials = p
	return c
}

func (c *S3ClientConfig) WithKeyPrefix(prefix string) *S3ClientConfig {
	c.KeyPrefix = strings.Trim(prefix, "/")
	return c
}

func (c *S3ClientConfig) objectKey(key string) string {
	if c.KeyPrefix == "" {
		return key
	}
	return c.KeyPrefix + "/" + strings.TrimLeft(key, "/")
}
