// Package s3client mirrors downloaded Box content into S3 compatible
// storage.
package s3client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joy-dx/gobox/dto"
)

// s3API This internal interface abstracts the s3 client for easier testing
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Client struct {
	NetClient dto.NetClient
	cfg       *S3ClientConfig
	client    s3API
}

func NewS3Client(ctx context.Context, ref string, cfg *S3ClientConfig) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Client{
		cfg:    cfg,
		client: client,
		NetClient: dto.NetClient{
			Name:        "S3 Mirror",
			Ref:         ref,
			ClientType:  NetClientS3Ref,
			Description: "Mirrors downloaded Box files into an S3 bucket",
		},
	}, nil
}

func (c *S3Client) Ref() string {
	return c.NetClient.Ref
}

func (c *S3Client) Type() dto.NetClientType {
	return NetClientS3Ref
}

func (c *S3Client) Config() S3ClientConfig {
	return *c.cfg
}

// Process runs middlewares, builds the SDK input and executes it.
func (c *S3Client) Process(ctx context.Context, reqCfg *S3RequestConfig) (S3Result, error) {
	if reqCfg == nil {
		return S3Result{}, fmt.Errorf("nil S3RequestConfig provided")
	}
	r := reqCfg.NewRequest(c.cfg)

	for _, mw := range c.cfg.Middlewares {
		if err := mw(ctx, r); err != nil {
			return S3Result{}, fmt.Errorf("middleware aborted: %w", err)
		}
	}

	if err := r.Finalize(); err != nil {
		return S3Result{}, err
	}

	switch r.Operation {
	case OpGet:
		return c.doGet(ctx, r)
	case OpPut:
		return c.doPut(ctx, r)
	case OpDelete:
		return c.doDelete(ctx, r)
	default:
		return c.doList(ctx, r)
	}
}

// PutFile uploads a local file. The content type is guessed from the file
// extension when empty.
func (c *S3Client) PutFile(ctx context.Context, key, path, contentType string, metadata map[string]string) (S3Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return S3Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return S3Result{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Process(ctx, &S3RequestConfig{
		Operation:     OpPut,
		Key:           key,
		Body:          f,
		ContentLength: info.Size(),
		ContentType:   contentType,
		Metadata:      metadata,
	})
}

func (c *S3Client) doGet(ctx context.Context, r *S3Request) (S3Result, error) {
	out, err := c.client.GetObject(ctx, r.GetInput)
	if err != nil {
		return S3Result{}, fmt.Errorf("s3 get object: %w", err)
	}
	body := out.Body
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
	}
	return S3Result{
		Body:        body,
		Metadata:    out.Metadata,
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}

func (c *S3Client) doPut(ctx context.Context, r *S3Request) (S3Result, error) {
	out, err := c.client.PutObject(ctx, r.PutInput)
	if err != nil {
		return S3Result{}, fmt.Errorf("s3 put object: %w", err)
	}
	return S3Result{ETag: aws.ToString(out.ETag)}, nil
}

func (c *S3Client) doDelete(ctx context.Context, r *S3Request) (S3Result, error) {
	if _, err := c.client.DeleteObject(ctx, r.DeleteInput); err != nil {
		return S3Result{}, fmt.Errorf("s3 delete object: %w", err)
	}
	return S3Result{}, nil
}

func (c *S3Client) doList(ctx context.Context, r *S3Request) (S3Result, error) {
	var keys []string
	in := *r.ListInput
	for {
		out, err := c.client.ListObjectsV2(ctx, &in)
		if err != nil {
			return S3Result{}, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		in.ContinuationToken = out.NextContinuationToken
	}
	return S3Result{Keys: keys}, nil
}
