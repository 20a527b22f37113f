package dto

import (
	"io"
	"net/http"
	"net/url"
)

// APIRequest is the prepared, wire-ready form of a call. It is rebuilt for
// every attempt so a NetworkClient may consume Body freely.
type APIRequest struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers http.Header
	Body    io.Reader
	// ContentLength -1 when unknown
	ContentLength   int64
	ProxyURL        *url.URL
	FollowRedirects bool
}

// FullURL returns URL with Params merged into its query string.
func (r *APIRequest) FullURL() (string, error) {
	if len(r.Params) == 0 {
		return r.URL, nil
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range r.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
