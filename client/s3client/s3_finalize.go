package s3client

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Finalize builds the AWS SDK input for the operation. Call it exactly once
// after middleware has run and before executing.
func (r *S3Request) Finalize() error {
	r.PutInput = nil
	r.GetInput = nil
	r.DeleteInput = nil
	r.ListInput = nil

	if r.Bucket == "" {
		return fmt.Errorf("s3 %s: bucket is required", r.Operation)
	}

	switch r.Operation {
	case OpGet:
		if r.Key == "" {
			return fmt.Errorf("s3 get: key is required")
		}
		r.GetInput = &s3.GetObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.Key),
		}
		return nil

	case OpPut:
		if r.Key == "" {
			return fmt.Errorf("s3 put: key is required")
		}
		if r.Body == nil {
			return fmt.Errorf("s3 put: body is required")
		}
		in := &s3.PutObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.Key),
			Body:   r.Body,
		}
		if r.ContentLength > 0 {
			in.ContentLength = aws.Int64(r.ContentLength)
		}
		if r.ContentType != "" {
			in.ContentType = aws.String(r.ContentType)
		}
		if r.CacheControl != "" {
			in.CacheControl = aws.String(r.CacheControl)
		}
		if len(r.Metadata) > 0 {
			md := make(map[string]string, len(r.Metadata))
			for k, v := range r.Metadata {
				md[k] = v
			}
			in.Metadata = md
		}
		r.PutInput = in
		return nil

	case OpDelete:
		if r.Key == "" {
			return fmt.Errorf("s3 delete: key is required")
		}
		r.DeleteInput = &s3.DeleteObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.Key),
		}
		return nil

	case OpList:
		r.ListInput = &s3.ListObjectsV2Input{
			Bucket: aws.String(r.Bucket),
		}
		if r.Prefix != "" {
			r.ListInput.Prefix = aws.String(r.Prefix)
		}
		return nil

	default:
		return fmt.Errorf("unsupported s3 operation: %s", r.Operation)
	}
}
