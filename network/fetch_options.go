package network

import (
	"io"
	"maps"
	"net/http"
	"time"

	"github.com/joy-dx/gobox/utils"
)

type ResponseFormat string

const (
	ResponseFormatJSON      ResponseFormat = "json"
	ResponseFormatBinary    ResponseFormat = "binary"
	ResponseFormatNoContent ResponseFormat = "no_content"
)

type MultipartItem = utils.MultipartPart

// FetchOptions describes one logical API call. Fetch never mutates it, so a
// value may be reused across calls as long as its streams are rewindable.
type FetchOptions struct {
	URL             string
	Method          string
	Params          map[string]string
	Headers         map[string]string
	Data            any
	FileStream      io.Reader
	MultipartData   []MultipartItem
	ContentType     string
	ResponseFormat  ResponseFormat
	Auth            Authentication
	Session         *NetworkSession
	FollowRedirects bool
	Timeout         time.Duration
}

func NewFetchOptions(url, method string) *FetchOptions {
	if method == "" {
		method = http.MethodGet
	}
	return &FetchOptions{
		URL:             url,
		Method:          method,
		Params:          map[string]string{},
		Headers:         map[string]string{},
		ContentType:     utils.ContentTypeJSON,
		ResponseFormat:  ResponseFormatJSON,
		FollowRedirects: true,
	}
}

// WithParams drops empty values.
func (o *FetchOptions) WithParams(params map[string]string) *FetchOptions {
	if o.Params == nil {
		o.Params = map[string]string{}
	}
	for k, v := range params {
		if v != "" {
			o.Params[k] = v
		}
	}
	return o
}
func (o *FetchOptions) WithHeaders(headers map[string]string) *FetchOptions {
	if o.Headers == nil {
		o.Headers = map[string]string{}
	}
	maps.Copy(o.Headers, headers)
	return o
}
func (o *FetchOptions) WithData(data any) *FetchOptions {
	o.Data = data
	return o
}
func (o *FetchOptions) WithFileStream(r io.Reader) *FetchOptions {
	o.FileStream = r
	return o
}
func (o *FetchOptions) WithMultipartData(items ...MultipartItem) *FetchOptions {
	o.MultipartData = append(o.MultipartData, items...)
	o.ContentType = utils.ContentTypeMultipart
	return o
}
func (o *FetchOptions) WithContentType(ct string) *FetchOptions {
	o.ContentType = ct
	return o
}
func (o *FetchOptions) WithResponseFormat(f ResponseFormat) *FetchOptions {
	o.ResponseFormat = f
	return o
}
func (o *FetchOptions) WithAuth(a Authentication) *FetchOptions {
	o.Auth = a
	return o
}
func (o *FetchOptions) WithSession(s *NetworkSession) *FetchOptions {
	o.Session = s
	return o
}
func (o *FetchOptions) WithFollowRedirects(follow bool) *FetchOptions {
	o.FollowRedirects = follow
	return o
}
func (o *FetchOptions) WithTimeout(d time.Duration) *FetchOptions {
	o.Timeout = d
	return o
}

func (o *FetchOptions) headerSet(name string) bool {
	for k := range o.Headers {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(name) {
			return true
		}
	}
	return false
}
