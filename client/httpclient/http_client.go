package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/joy-dx/gobox/dto"
)

const NetClientHTTPRef dto.NetClientType = "net.client.http"

type ctxKey int

const (
	proxyKey ctxKey = iota
	noRedirectKey
)

// HTTPClient is the default dto.NetworkClient. One pooled transport serves
// every session; proxy and redirect policy travel with each request.
type HTTPClient struct {
	NetClient dto.NetClient `json:"net_client" yaml:"net_client"`
	cfg       *HTTPClientConfig
	client    *http.Client
}

func NewHTTPClient(ref string, cfg *HTTPClientConfig) *HTTPClient {
	if cfg == nil {
		c := DefaultHTTPClientConfig()
		cfg = &c
	}
	c := &HTTPClient{
		cfg: cfg,
		NetClient: dto.NetClient{
			Name:        "HTTP Client",
			Ref:         ref,
			ClientType:  NetClientHTTPRef,
			Description: "Perform HTTP requests against the Box API",
		},
	}
	c.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
			DisableKeepAlives:   false,
			ForceAttemptHTTP2:   true,
			Proxy:               c.proxy,
		},
		CheckRedirect: c.checkRedirect,
	}
	return c
}

func (c *HTTPClient) Ref() string {
	return c.NetClient.Ref
}
func (c *HTTPClient) Type() dto.NetClientType {
	return NetClientHTTPRef
}

func (c *HTTPClient) proxy(r *http.Request) (*url.URL, error) {
	if u, ok := r.Context().Value(proxyKey).(*url.URL); ok && u != nil {
		return u, nil
	}
	if c.cfg.ProxyFromEnvironment {
		return http.ProxyFromEnvironment(r)
	}
	return nil, nil
}

func (c *HTTPClient) checkRedirect(r *http.Request, via []*http.Request) error {
	if noFollow, _ := r.Context().Value(noRedirectKey).(bool); noFollow {
		return http.ErrUseLastResponse
	}
	if len(via) >= c.cfg.MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", c.cfg.MaxRedirects)
	}
	return nil
}

// ProcessRequest performs exactly one exchange. The response body is handed
// to the caller unread and must be closed.
func (c *HTTPClient) ProcessRequest(ctx context.Context, req *dto.APIRequest) (dto.Response, error) {
	if req == nil {
		return dto.Response{}, errors.New("nil request")
	}
	fullURL, err := req.FullURL()
	if err != nil {
		return dto.Response{}, fmt.Errorf("build url: %w", err)
	}

	if req.ProxyURL != nil {
		ctx = context.WithValue(ctx, proxyKey, req.ProxyURL)
	}
	if !req.FollowRedirects {
		ctx = context.WithValue(ctx, noRedirectKey, true)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, req.Body)
	if err != nil {
		return dto.Response{}, fmt.Errorf("create request: %w", err)
	}
	if req.Headers != nil {
		httpReq.Header = req.Headers.Clone()
	}
	if req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}

	for _, mw := range c.cfg.Middlewares {
		if err := mw(ctx, httpReq); err != nil {
			return dto.Response{}, fmt.Errorf("middleware aborted: %w", err)
		}
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		if httpResp != nil && httpResp.Body != nil {
			_ = httpResp.Body.Close()
		}
		return dto.Response{}, fmt.Errorf("perform request: %w", err)
	}

	return dto.Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header.Clone(),
		URL:        httpResp.Request.URL.String(),
		Body:       httpResp.Body,
	}, nil
}
