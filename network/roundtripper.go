package network

import (
	"fmt"
	"net/http"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/relays"
	"github.com/joy-dx/gobox/utils"
)

// RoundTripper lets libraries that speak net/http (golang.org/x/oauth2)
// travel over a session's NetworkClient, proxy and headers. It performs a
// single exchange with no retries.
type RoundTripper struct {
	Session *NetworkSession
}

func NewRoundTripper(session *NetworkSession) *RoundTripper {
	if session == nil {
		session = NewNetworkSession()
	}
	return &RoundTripper{Session: session}
}

// HTTPClient wraps the round tripper in an *http.Client.
func (rt *RoundTripper) HTTPClient() *http.Client {
	return &http.Client{Transport: rt}
}

func (rt *RoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	s := rt.Session
	if s == nil {
		s = NewNetworkSession()
	}

	headers := r.Header.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	headers.Set("User-Agent", UserAgent)
	headers.Set("X-Box-UA", XBoxUA)
	for k, v := range s.additionalHeaders {
		if headers.Get(k) == "" {
			headers.Set(k, v)
		}
	}

	req := &dto.APIRequest{
		Method:          r.Method,
		URL:             r.URL.String(),
		Headers:         headers,
		ContentLength:   r.ContentLength,
		ProxyURL:        s.ProxyURL(),
		FollowRedirects: true,
	}
	if r.Body != nil && r.Body != http.NoBody {
		req.Body = r.Body
	}

	s.relay.Debug(relays.RlyNetRequest{
		Method:  r.Method,
		URL:     r.URL.Redacted(),
		Attempt: 1,
		Headers: s.sanitizer.SanitizeHeaders(utils.HeaderToMap(headers)),
	})

	resp, err := s.networkClient.ProcessRequest(r.Context(), req)
	if err != nil {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, err
	}
	s.relay.Debug(relays.RlyNetResponse{
		Method:    r.Method,
		URL:       r.URL.Redacted(),
		Status:    resp.StatusCode,
		Attempt:   1,
		RequestID: resp.Headers.Get("Box-Request-Id"),
	})

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode:    resp.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        resp.Headers,
		Body:          resp.Body,
		ContentLength: -1,
		Request:       r,
	}, nil
}
