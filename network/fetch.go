package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/relays"
	"github.com/joy-dx/gobox/sanitizer"
	"github.com/joy-dx/gobox/utils"
)

const Version = "1.0.0"

var (
	UserAgent = "gobox/" + Version
	XBoxUA    = fmt.Sprintf("agent=gobox/%s; env=go/%s", Version, strings.TrimPrefix(runtime.Version(), "go"))
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 1 << 20

// Fetch executes opts with authentication, retries and response handling.
// Success is any status in [200, 400).
func Fetch(ctx context.Context, opts *FetchOptions) (*FetchResponse, error) {
	if opts == nil {
		return nil, dto.NewSDKError("fetch options are required", nil)
	}
	session := opts.Session
	if session == nil {
		session = NewNetworkSession()
	}
	auth := opts.Auth
	if auth == nil {
		auth = session.auth
	}
	f := &fetcher{
		opts:    opts,
		session: session,
		auth:    auth,
		method:  strings.ToUpper(opts.Method),
	}
	if f.method == "" {
		f.method = http.MethodGet
	}
	f.explicitAuth = opts.headerSet("Authorization")
	for k := range session.additionalHeaders {
		if http.CanonicalHeaderKey(k) == "Authorization" {
			f.explicitAuth = true
		}
	}
	return f.run(ctx)
}

type fetcher struct {
	opts         *FetchOptions
	session      *NetworkSession
	auth         Authentication
	method       string
	explicitAuth bool
	streams      []streamMark
}

type streamMark struct {
	seeker io.Seeker
	offset int64
}

// readerOnly hides Close so the HTTP client cannot close caller streams
// between attempts.
type readerOnly struct{ io.Reader }

func (f *fetcher) run(ctx context.Context) (*FetchResponse, error) {
	timeout := f.opts.Timeout
	if timeout <= 0 {
		timeout = f.session.timeout
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	keepDeadline := false
	defer func() {
		if !keepDeadline {
			cancel()
		}
	}()

	metrics := f.session.metrics
	metrics.RecordStart(f.method)
	defer metrics.RecordEnd(f.method)

	relay := f.session.relay
	strategy := f.session.retryStrategy
	f.markStreams()

	start := time.Now()
	attempt, exceptions := 0, 0
	refreshed := false
	for {
		attempt++

		req, bodyDesc, err := f.buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		relay.Debug(relays.RlyNetRequest{
			Method:  f.method,
			URL:     f.opts.URL,
			Attempt: attempt,
			Headers: f.session.sanitizer.SanitizeHeaders(utils.HeaderToMap(req.Headers)),
		})

		sent := time.Now()
		resp, err := f.session.networkClient.ProcessRequest(ctx, req)
		if err != nil {
			metrics.RecordRequest(f.method, 0, time.Since(sent))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, dto.NewSDKError(fmt.Sprintf("%s %s aborted", f.method, f.opts.URL), ctxErr)
			}
			if !utils.IsTemporaryErr(err) {
				return nil, dto.NewSDKError(fmt.Sprintf("%s %s failed", f.method, f.opts.URL), err)
			}
			exceptions++
			delay, retry := strategy.ShouldRetry(RetryAttempt{
				Options: f.opts,
				Number:  exceptions,
				Elapsed: time.Since(start),
				Headers: http.Header{},
				Err:     err,
			})
			if !retry {
				return nil, dto.NewSDKError(fmt.Sprintf("%s %s failed after %d attempts", f.method, f.opts.URL, attempt), err)
			}
			if err := f.rewind(); err != nil {
				return nil, err
			}
			if err := f.wait(ctx, attempt, 0, delay, "transport", err); err != nil {
				return nil, err
			}
			continue
		}

		status := resp.StatusCode
		metrics.RecordRequest(f.method, status, time.Since(sent))
		relay.Debug(relays.RlyNetResponse{
			Method:    f.method,
			URL:       f.opts.URL,
			Status:    status,
			Attempt:   attempt,
			Duration:  time.Since(sent),
			RequestID: resp.Headers.Get("Box-Request-Id"),
		})

		if status == http.StatusUnauthorized && f.auth != nil && !f.explicitAuth && !refreshed {
			drain(resp.Body)
			refreshed = true
			if _, err := f.auth.RefreshToken(ctx, f.session); err != nil {
				metrics.RecordAuthRefresh(false)
				return nil, asAuthError("refresh token after 401", err)
			}
			metrics.RecordAuthRefresh(true)
			if err := f.rewind(); err != nil {
				return nil, err
			}
			relay.Info(relays.RlyNetRetry{
				Method:  f.method,
				URL:     f.opts.URL,
				Attempt: attempt,
				Status:  status,
				Reason:  "unauthorized",
			})
			metrics.RecordRetry(f.method, "unauthorized")
			continue
		}

		delay, retry := strategy.ShouldRetry(RetryAttempt{
			Options: f.opts,
			Number:  attempt,
			Elapsed: time.Since(start),
			Status:  status,
			Headers: resp.Headers,
		})
		if retry {
			drain(resp.Body)
			if err := f.rewind(); err != nil {
				return nil, err
			}
			if err := f.wait(ctx, attempt, status, delay, "status", nil); err != nil {
				return nil, err
			}
			continue
		}

		if status >= 200 && status < 400 {
			out, streamed, err := f.finish(resp, cancel)
			keepDeadline = streamed
			return out, err
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		apiErr := dto.NewAPIError(dto.RequestInfo{
			Method:      f.method,
			URL:         f.opts.URL,
			QueryParams: maps.Clone(f.opts.Params),
			Headers:     req.Headers,
			Body:        bodyDesc,
		}, status, resp.Headers, body, f.session.sanitizer)
		apiErr.Attempts = attempt
		apiErr.RetriesExhausted = IsRetryableStatus(status, resp.Headers)
		relay.Warn(relays.RlyNetLog{Msg: fmt.Sprintf("%s %s: %s", f.method, f.opts.URL, apiErr.Error())})
		return nil, apiErr
	}
}

func (f *fetcher) wait(ctx context.Context, attempt, status int, delay time.Duration, reason string, cause error) error {
	ev := relays.RlyNetRetry{
		Method:  f.method,
		URL:     f.opts.URL,
		Attempt: attempt,
		Status:  status,
		Delay:   delay,
		Reason:  reason,
	}
	if cause != nil {
		ev.Err = cause.Error()
	}
	f.session.relay.Warn(ev)
	f.session.metrics.RecordRetry(f.method, reason)
	if err := utils.Sleep(ctx, delay); err != nil {
		return dto.NewSDKError(fmt.Sprintf("%s %s aborted while waiting to retry", f.method, f.opts.URL), err)
	}
	return nil
}

func (f *fetcher) finish(resp dto.Response, cancel context.CancelFunc) (*FetchResponse, bool, error) {
	out := &FetchResponse{
		Status:  resp.StatusCode,
		Headers: resp.Headers,
		URL:     resp.URL,
	}
	switch f.opts.ResponseFormat {
	case ResponseFormatBinary:
		out.Content = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return out, true, nil
	case ResponseFormatNoContent:
		drain(resp.Body)
		return out, false, nil
	}

	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, false, dto.NewSDKError("read response body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, false, nil
	}
	if !json.Valid(data) {
		return nil, false, dto.NewSerializationError(fmt.Sprintf("%s %s returned invalid JSON", f.method, f.opts.URL), data, nil)
	}
	out.Data = json.RawMessage(data)
	return out, false, nil
}

// buildRequest assembles headers and body for one attempt. Bodies are
// rebuilt every time from Data or from rewound streams.
func (f *fetcher) buildRequest(ctx context.Context) (*dto.APIRequest, string, error) {
	headers := make(http.Header)
	req := &dto.APIRequest{
		Method:          f.method,
		URL:             f.opts.URL,
		Params:          maps.Clone(f.opts.Params),
		Headers:         headers,
		ContentLength:   -1,
		ProxyURL:        f.session.ProxyURL(),
		FollowRedirects: f.opts.FollowRedirects,
	}

	ct := f.opts.ContentType
	if ct == "" {
		ct = utils.ContentTypeJSON
	}
	var bodyDesc string
	switch utils.MediaType(ct) {
	case utils.ContentTypeMultipart:
		body, mct, err := utils.MultipartBody(f.opts.MultipartData)
		if err != nil {
			return nil, "", dto.NewSDKError("build multipart body", err)
		}
		req.Body = body
		ct = mct
		bodyDesc = "<multipart>"
	case utils.ContentTypeJSON, utils.ContentTypeJSONPatch, utils.ContentTypeForm:
		if f.opts.Data != nil {
			raw, _, err := utils.PrepareBody(f.opts.Data, ct)
			if err != nil {
				return nil, "", dto.NewSerializationError("encode request body", nil, err)
			}
			req.Body = bytes.NewReader(raw)
			req.ContentLength = int64(len(raw))
			bodyDesc = f.describeBody(raw, ct)
		}
	default:
		if f.opts.FileStream != nil {
			req.Body = readerOnly{f.opts.FileStream}
			req.ContentLength = remaining(f.opts.FileStream)
			bodyDesc = "<binary stream>"
		} else if f.opts.Data != nil {
			return nil, "", dto.NewSDKError("unsupported content type for data: "+ct, nil)
		}
	}
	if f.opts.FileStream != nil && req.Body == nil {
		req.Body = readerOnly{f.opts.FileStream}
		req.ContentLength = remaining(f.opts.FileStream)
		bodyDesc = "<binary stream>"
	}

	headers.Set("Content-Type", ct)
	headers.Set("User-Agent", UserAgent)
	headers.Set("X-Box-UA", XBoxUA)
	if f.auth != nil && !f.explicitAuth {
		value, err := f.auth.RetrieveAuthorizationHeader(ctx, f.session)
		if err != nil {
			return nil, "", asAuthError("retrieve authorization header", err)
		}
		headers.Set("Authorization", value)
	}
	utils.MergeHeaders(headers, f.session.additionalHeaders, f.opts.Headers)
	return req, bodyDesc, nil
}

// describeBody is the redacted rendering kept for error diagnostics.
func (f *fetcher) describeBody(raw []byte, ct string) string {
	s := f.session.sanitizer
	if utils.MediaType(ct) == utils.ContentTypeForm {
		return s.SanitizeForm(string(raw))
	}
	out, err := json.Marshal(s.SanitizeBody(json.RawMessage(raw)))
	if err != nil {
		return sanitizer.Redacted
	}
	return string(out)
}

func (f *fetcher) markStreams() {
	add := func(r io.Reader) {
		if r == nil {
			return
		}
		mark := streamMark{}
		if s, ok := r.(io.Seeker); ok {
			if off, err := s.Seek(0, io.SeekCurrent); err == nil {
				mark.seeker, mark.offset = s, off
			}
		}
		f.streams = append(f.streams, mark)
	}
	add(f.opts.FileStream)
	for _, part := range f.opts.MultipartData {
		add(part.FileStream)
	}
}

// rewind restores every request stream to its starting offset before a
// retry.
func (f *fetcher) rewind() error {
	for _, m := range f.streams {
		if m.seeker == nil {
			return dto.NewSDKError("request with non-seekable stream cannot be retried", dto.ErrNonSeekableStream)
		}
		if _, err := m.seeker.Seek(m.offset, io.SeekStart); err != nil {
			return dto.NewSDKError("rewind request stream", fmt.Errorf("%w: %w", dto.ErrNonSeekableStream, err))
		}
	}
	return nil
}

func remaining(r io.Reader) int64 {
	s, ok := r.(io.Seeker)
	if !ok {
		return -1
	}
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return -1
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return -1
	}
	return end - cur
}

func drain(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, maxErrorBody))
	_ = rc.Close()
}

func asAuthError(msg string, err error) error {
	var authErr *dto.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return dto.NewAuthError(msg, err)
}
