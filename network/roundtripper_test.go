package network

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/joy-dx/gobox/dto"
)

func TestRoundTripper_Golden(t *testing.T) {
	t.Parallel()

	var got *dto.APIRequest
	client := &fakeNetClient{fn: func(ctx context.Context, req *dto.APIRequest) (dto.Response, error) {
		got = req
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		return dto.Response{StatusCode: 200, Headers: h, Body: io.NopCloser(strings.NewReader(`{"access_token":"x"}`))}, nil
	}}
	session, err := NewNetworkSession().
		WithNetworkClient(client).
		WithAdditionalHeaders(map[string]string{"X-Trace": "1"}).
		WithProxy(ProxyConfig{URL: "http://proxy.local:3128"})
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}

	hc := NewRoundTripper(session).HTTPClient()
	resp, err := hc.Post("https://account.box.com/api/oauth2/token", "application/x-www-form-urlencoded", strings.NewReader("grant_type=x"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != `{"access_token":"x"}` {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if got == nil {
		t.Fatalf("network client not called")
	}
	if got.Headers.Get("User-Agent") != UserAgent || got.Headers.Get("X-Trace") != "1" {
		t.Fatalf("headers=%v", got.Headers)
	}
	if got.ProxyURL == nil || got.ProxyURL.Host != "proxy.local:3128" {
		t.Fatalf("proxy=%v", got.ProxyURL)
	}
	if client.calls.Load() != 1 {
		t.Fatalf("calls=%d want exactly one exchange", client.calls.Load())
	}
}
