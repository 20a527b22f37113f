package s3client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	// Captured inputs
	gotGet    []*s3.GetObjectInput
	gotPut    []*s3.PutObjectInput
	putBodies []string
	gotDelete []*s3.DeleteObjectInput
	gotList   []*s3.ListObjectsV2Input

	// Stubbed outputs / errors
	getOut   *s3.GetObjectOutput
	getErr   error
	putErr   error
	delErr   error
	listOuts []*s3.ListObjectsV2Output
	listErr  error
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotGet = append(f.gotGet, params)
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getOut == nil {
		return &s3.GetObjectOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.gotPut = append(f.gotPut, params)
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.putBodies = append(f.putBodies, string(b))
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-1"`)}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.gotDelete = append(f.gotDelete, params)
	if f.delErr != nil {
		return nil, f.delErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	cp := *params
	f.gotList = append(f.gotList, &cp)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.listOuts) == 0 {
		return &s3.ListObjectsV2Output{}, nil
	}
	out := f.listOuts[0]
	f.listOuts = f.listOuts[1:]
	return out, nil
}

func newTestClient(t *testing.T, cfg S3ClientConfig) (*S3Client, *fakeS3) {
	t.Helper()
	f := &fakeS3{}
	return &S3Client{cfg: &cfg, client: f}, f
}

func TestS3Request_Finalize_Golden(t *testing.T) {
	cases := []struct {
		name    string
		req     *S3Request
		wantErr string

		wantGet    *s3.GetObjectInput
		wantPut    *s3.PutObjectInput
		wantDelete *s3.DeleteObjectInput
		wantList   *s3.ListObjectsV2Input
	}{
		{
			name:    "get builds GetObjectInput",
			req:     &S3Request{Operation: OpGet, Bucket: "b", Key: "k"},
			wantGet: &s3.GetObjectInput{Bucket: aws.String("b"), Key: aws.String("k")},
		},
		{
			name: "put carries length, content type, cache control and metadata",
			req: &S3Request{
				Operation:     OpPut,
				Bucket:        "b",
				Key:           "k",
				Body:          strings.NewReader("payload"),
				ContentLength: 7,
				ContentType:   "text/plain",
				CacheControl:  "max-age=60",
				Metadata:      map[string]string{"box-file-id": "1"},
			},
			wantPut: &s3.PutObjectInput{
				Bucket:        aws.String("b"),
				Key:           aws.String("k"),
				ContentLength: aws.Int64(7),
				ContentType:   aws.String("text/plain"),
				CacheControl:  aws.String("max-age=60"),
				Metadata:      map[string]string{"box-file-id": "1"},
			},
		},
		{
			name:    "put without body fails",
			req:     &S3Request{Operation: OpPut, Bucket: "b", Key: "k"},
			wantErr: "s3 put: body is required",
		},
		{
			name:       "delete builds DeleteObjectInput",
			req:        &S3Request{Operation: OpDelete, Bucket: "b", Key: "k"},
			wantDelete: &s3.DeleteObjectInput{Bucket: aws.String("b"), Key: aws.String("k")},
		},
		{
			name:     "list builds ListObjectsV2Input with prefix",
			req:      &S3Request{Operation: OpList, Bucket: "b", Prefix: "p/"},
			wantList: &s3.ListObjectsV2Input{Bucket: aws.String("b"), Prefix: aws.String("p/")},
		},
		{
			name:    "missing bucket",
			req:     &S3Request{Operation: OpGet, Key: "k"},
			wantErr: "s3 get: bucket is required",
		},
		{
			name:    "unsupported operation returns error",
			req:     &S3Request{Operation: "nope", Bucket: "b"},
			wantErr: "unsupported s3 operation: nope",
		},
		{
			name: "Finalize clears previously prepared inputs before rebuilding",
			req: &S3Request{
				Operation: OpGet,
				Bucket:    "b",
				Key:       "k",
				PutInput:  &s3.PutObjectInput{Bucket: aws.String("old")},
			},
			wantGet: &s3.GetObjectInput{Bucket: aws.String("b"), Key: aws.String("k")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Finalize()
			if tc.wantErr != "" {
				if err == nil || err.Error() != tc.wantErr {
					t.Fatalf("expected err=%q, got=%v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Finalize error: %v", err)
			}
			if tc.wantGet != nil && !reflect.DeepEqual(tc.req.GetInput, tc.wantGet) {
				t.Fatalf("GetInput mismatch:\n got=%#v\nwant=%#v", tc.req.GetInput, tc.wantGet)
			}
			if tc.wantGet != nil && tc.req.PutInput != nil {
				t.Fatalf("stale PutInput kept")
			}
			if tc.wantDelete != nil && !reflect.DeepEqual(tc.req.DeleteInput, tc.wantDelete) {
				t.Fatalf("DeleteInput mismatch:\n got=%#v\nwant=%#v", tc.req.DeleteInput, tc.wantDelete)
			}
			if tc.wantList != nil && !reflect.DeepEqual(tc.req.ListInput, tc.wantList) {
				t.Fatalf("ListInput mismatch:\n got=%#v\nwant=%#v", tc.req.ListInput, tc.wantList)
			}
			if tc.wantPut != nil {
				if tc.req.PutInput == nil {
					t.Fatalf("expected PutInput, got nil")
				}
				got := *tc.req.PutInput
				if got.Body != tc.req.Body {
					t.Fatalf("PutInput.Body is not the request body")
				}
				got.Body = nil
				if !reflect.DeepEqual(&got, tc.wantPut) {
					t.Fatalf("PutInput mismatch (excluding Body):\n got=%#v\nwant=%#v", &got, tc.wantPut)
				}
			}
		})
	}
}

func TestS3RequestConfig_NewRequest_Golden(t *testing.T) {
	cases := []struct {
		name       string
		cfg        S3ClientConfig
		in         S3RequestConfig
		wantBucket string
		wantKey    string
		wantPrefix string
	}{
		{
			name:       "defaults bucket from client",
			cfg:        S3ClientConfig{Bucket: "mirror"},
			in:         S3RequestConfig{Operation: OpGet, Key: "a.txt"},
			wantBucket: "mirror",
			wantKey:    "a.txt",
		},
		{
			name:       "explicit bucket wins and prefix applied",
			cfg:        S3ClientConfig{Bucket: "mirror", KeyPrefix: "box"},
			in:         S3RequestConfig{Operation: OpPut, Bucket: "other", Key: "/a.txt"},
			wantBucket: "other",
			wantKey:    "box/a.txt",
		},
		{
			name:       "list scoped to key prefix",
			cfg:        S3ClientConfig{Bucket: "mirror", KeyPrefix: "box"},
			in:         S3RequestConfig{Operation: OpList},
			wantBucket: "mirror",
			wantPrefix: "box/",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			r := tc.in.NewRequest(&cfg)
			if r.Bucket != tc.wantBucket || r.Key != tc.wantKey || r.Prefix != tc.wantPrefix {
				t.Fatalf("got bucket=%q key=%q prefix=%q", r.Bucket, r.Key, r.Prefix)
			}
		})
	}

	md := map[string]string{"a": "1"}
	r := (&S3RequestConfig{Operation: OpPut, Metadata: md}).NewRequest(nil)
	r.Metadata["a"] = "changed"
	if md["a"] != "1" {
		t.Fatalf("metadata aliased")
	}
}

func TestS3Client_Process_Golden(t *testing.T) {
	errBoom := errors.New("boom")

	cases := []struct {
		name          string
		req           *S3RequestConfig
		mw            []Middleware
		fake          func(f *fakeS3)
		wantErrSubstr string
		check         func(t *testing.T, f *fakeS3, res S3Result)
	}{
		{
			name:          "nil config",
			wantErrSubstr: "nil S3RequestConfig",
		},
		{
			name: "middleware aborts before the SDK call",
			req:  &S3RequestConfig{Operation: OpGet, Key: "k"},
			mw: []Middleware{func(ctx context.Context, r *S3Request) error {
				return errBoom
			}},
			wantErrSubstr: "middleware aborted: boom",
			check: func(t *testing.T, f *fakeS3, res S3Result) {
				if len(f.gotGet) != 0 {
					t.Fatalf("SDK called after middleware abort")
				}
			},
		},
		{
			name: "get returns body and metadata",
			req:  &S3RequestConfig{Operation: OpGet, Key: "k"},
			fake: func(f *fakeS3) {
				f.getOut = &s3.GetObjectOutput{
					Body:        io.NopCloser(strings.NewReader("hello")),
					Metadata:    map[string]string{"box-file-id": "9"},
					ContentType: aws.String("text/plain"),
				}
			},
			check: func(t *testing.T, f *fakeS3, res S3Result) {
				defer res.Body.Close()
				b, _ := io.ReadAll(res.Body)
				if string(b) != "hello" || res.Metadata["box-file-id"] != "9" || res.ContentType != "text/plain" {
					t.Fatalf("unexpected result %+v body=%q", res, b)
				}
			},
		},
		{
			name: "get without body yields empty reader",
			req:  &S3RequestConfig{Operation: OpGet, Key: "k"},
			check: func(t *testing.T, f *fakeS3, res S3Result) {
				b, _ := io.ReadAll(res.Body)
				if len(b) != 0 {
					t.Fatalf("expected empty body")
				}
			},
		},
		{
			name:          "get error is wrapped",
			req:           &S3RequestConfig{Operation: OpGet, Key: "k"},
			fake:          func(f *fakeS3) { f.getErr = errBoom },
			wantErrSubstr: "s3 get object: boom",
		},
		{
			name: "put applies middleware metadata",
			req:  &S3RequestConfig{Operation: OpPut, Key: "k", Body: bytes.NewReader([]byte("x"))},
			mw:   []Middleware{StaticS3MetaMiddleware(map[string]string{"source": "box"})},
			check: func(t *testing.T, f *fakeS3, res S3Result) {
				if res.ETag != `"etag-1"` {
					t.Fatalf("etag=%q", res.ETag)
				}
				if got := f.gotPut[0].Metadata["source"]; got != "box" {
					t.Fatalf("metadata source=%q", got)
				}
				if aws.ToString(f.gotPut[0].Bucket) != "mirror" {
					t.Fatalf("bucket=%q", aws.ToString(f.gotPut[0].Bucket))
				}
			},
		},
		{
			name:          "delete error is wrapped",
			req:           &S3RequestConfig{Operation: OpDelete, Key: "k"},
			fake:          func(f *fakeS3) { f.delErr = errBoom },
			wantErrSubstr: "s3 delete object: boom",
		},
		{
			name: "list follows continuation tokens",
			req:  &S3RequestConfig{Operation: OpList},
			fake: func(f *fakeS3) {
				f.listOuts = []*s3.ListObjectsV2Output{
					{
						Contents:              []s3types.Object{{Key: aws.String("a")}, {Key: aws.String("b")}},
						IsTruncated:           aws.Bool(true),
						NextContinuationToken: aws.String("t1"),
					},
					{Contents: []s3types.Object{{Key: aws.String("c")}}},
				}
			},
			check: func(t *testing.T, f *fakeS3, res S3Result) {
				if !reflect.DeepEqual(res.Keys, []string{"a", "b", "c"}) {
					t.Fatalf("keys=%v", res.Keys)
				}
				if len(f.gotList) != 2 || aws.ToString(f.gotList[1].ContinuationToken) != "t1" {
					t.Fatalf("continuation not followed: %+v", f.gotList)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, f := newTestClient(t, S3ClientConfig{Bucket: "mirror", Middlewares: tc.mw})
			if tc.fake != nil {
				tc.fake(f)
			}
			res, err := c.Process(context.Background(), tc.req)
			if tc.wantErrSubstr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErrSubstr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErrSubstr, err)
				}
			} else if err != nil {
				t.Fatalf("Process error: %v", err)
			}
			if tc.check != nil {
				tc.check(t, f, res)
			}
		})
	}
}

func TestS3Client_PutFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, []byte(`{"ok":true}`), 0o600); err != nil {
		t.Fatal(err)
	}
	c, f := newTestClient(t, S3ClientConfig{Bucket: "mirror", KeyPrefix: "box"})

	if _, err := c.PutFile(context.Background(), "123/report.json", path, "", map[string]string{"box-file-id": "123"}); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	in := f.gotPut[0]
	if aws.ToString(in.Key) != "box/123/report.json" {
		t.Fatalf("key=%q", aws.ToString(in.Key))
	}
	if aws.ToInt64(in.ContentLength) != 11 {
		t.Fatalf("content length=%d", aws.ToInt64(in.ContentLength))
	}
	if aws.ToString(in.ContentType) != "application/json" {
		t.Fatalf("content type=%q", aws.ToString(in.ContentType))
	}
	if f.putBodies[0] != `{"ok":true}` {
		t.Fatalf("body=%q", f.putBodies[0])
	}

	if _, err := c.PutFile(context.Background(), "k", filepath.Join(dir, "missing"), "", nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
