package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// StaticHeaderMiddleware injects static headers into every request. Headers
// already present on the request win.
func StaticHeaderMiddleware(headers map[string]string) Middleware {
	return func(ctx context.Context, r *http.Request) error {
		for k, v := range headers {
			if r.Header.Get(k) == "" {
				r.Header.Set(k, v)
			}
		}
		return nil
	}
}

func LoggingMiddleware(logger func(msg string)) Middleware {
	return func(ctx context.Context, r *http.Request) error {
		logger(fmt.Sprintf("[HTTP] %s %s", r.Method, r.URL.Redacted()))
		return nil
	}
}
