package s3client

import (
	"io"
	"maps"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpList   = "list"
)

// S3RequestConfig describes one S3 operation.
type S3RequestConfig struct {
	Operation string
	Bucket    string
	Key       string

	// Optional depending on operation
	Body          io.Reader
	ContentLength int64
	Prefix        string
	ContentType   string
	CacheControl  string
	Metadata      map[string]string
}

// S3Request is the mutable form of a config that middlewares see.
type S3Request struct {
	Operation string
	Bucket    string
	Key       string

	Body          io.Reader
	ContentLength int64
	Prefix        string
	ContentType   string
	CacheControl  string
	Metadata      map[string]string

	// Deterministic prepared AWS inputs (built after middleware)
	PutInput    *s3.PutObjectInput
	GetInput    *s3.GetObjectInput
	DeleteInput *s3.DeleteObjectInput
	ListInput   *s3.ListObjectsV2Input
}

// NewRequest copies c, filling bucket and key prefix from the client config.
func (c *S3RequestConfig) NewRequest(cfg *S3ClientConfig) *S3Request {
	r := &S3Request{
		Operation:     c.Operation,
		Bucket:        c.Bucket,
		Key:           c.Key,
		Body:          c.Body,
		ContentLength: c.ContentLength,
		Prefix:        c.Prefix,
		ContentType:   c.ContentType,
		CacheControl:  c.CacheControl,
		Metadata:      maps.Clone(c.Metadata),
	}
	if cfg != nil {
		if r.Bucket == "" {
			r.Bucket = cfg.Bucket
		}
		if r.Key != "" {
			r.Key = cfg.objectKey(r.Key)
		}
		if r.Prefix != "" || r.Operation == OpList {
			r.Prefix = cfg.objectKey(r.Prefix)
		}
	}
	return r
}

// S3Result carries whatever the operation produced. Body must be closed
// after a get.
type S3Result struct {
	Body        io.ReadCloser
	Metadata    map[string]string
	ContentType string
	ETag        string
	Keys        []string
}
