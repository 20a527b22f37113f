package httpclient

import (
	"context"
	"net/http"
	"time"
)

// Middleware may inspect or alter the outgoing request before it is sent.
type Middleware func(ctx context.Context, req *http.Request) error

type HTTPClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	// ProxyFromEnvironment applies HTTP(S)_PROXY when a request carries no
	// explicit proxy.
	ProxyFromEnvironment bool
	MaxRedirects         int
	Middlewares          []Middleware
}

func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		MaxIdleConns:         50,
		MaxIdleConnsPerHost:  10,
		IdleConnTimeout:      90 * time.Second,
		TLSHandshakeTimeout:  10 * time.Second,
		ProxyFromEnvironment: true,
		MaxRedirects:         10,
		Middlewares:          make([]Middleware, 0),
	}
}

func (c *HTTPClientConfig) WithMaxIdleConns(n int) *HTTPClientConfig {
	c.MaxIdleConns = n
	return c
}
func (c *HTTPClientConfig) WithIdleConnTimeout(d time.Duration) *HTTPClientConfig {
	c.IdleConnTimeout = d
	return c
}
func (c *HTTPClientConfig) WithProxyFromEnvironment(enabled bool) *HTTPClientConfig {
	c.ProxyFromEnvironment = enabled
	return c
}
func (c *HTTPClientConfig) WithMaxRedirects(n int) *HTTPClientConfig {
	c.MaxRedirects = n
	return c
}
func (c *HTTPClientConfig) WithMiddleware(m ...Middleware) *HTTPClientConfig {
	c.Middlewares = append(c.Middlewares, m...)
	return c
}
