package network

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joy-dx/gobox/client/httpclient"
	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/relays"
	"github.com/joy-dx/gobox/sanitizer"
	relayDTO "github.com/joy-dx/relay/dto"
)

type BaseURLs struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	UploadURL string `json:"upload_url" yaml:"upload_url"`
	OAuth2URL string `json:"oauth2_url" yaml:"oauth2_url"`
}

func DefaultBaseURLs() BaseURLs {
	return BaseURLs{
		BaseURL:   "https://api.box.com",
		UploadURL: "https://upload.box.com/api",
		OAuth2URL: "https://account.box.com/api/oauth2",
	}
}

type ProxyConfig struct {
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// ProxyURL validates the config and embeds credentials as userinfo.
func (p ProxyConfig) ProxyURL() (*url.URL, error) {
	if !strings.HasPrefix(p.URL, "http") {
		return nil, errors.New("invalid proxy URL: must start with http")
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if p.Username != "" && p.Password != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u, nil
}

var (
	defaultClientOnce sync.Once
	defaultClient     dto.NetworkClient
)

// DefaultNetworkClient is shared by every session that does not set its own,
// so connections are pooled process-wide.
func DefaultNetworkClient() dto.NetworkClient {
	defaultClientOnce.Do(func() {
		defaultClient = httpclient.NewHTTPClient(dto.NET_DEFAULT_CLIENT_REF, nil)
	})
	return defaultClient
}

// NetworkSession holds per-client network settings. It is never mutated
// after construction; every With method returns a new session.
type NetworkSession struct {
	additionalHeaders map[string]string
	baseURLs          BaseURLs
	proxy             *ProxyConfig
	proxyURL          *url.URL
	networkClient     dto.NetworkClient
	retryStrategy     RetryStrategy
	sanitizer         *sanitizer.DataSanitizer
	auth              Authentication
	relay             relayDTO.RelayInterface
	metrics           *Metrics
	timeout           time.Duration
}

type SessionOption func(*NetworkSession)

func NewNetworkSession(opts ...SessionOption) *NetworkSession {
	s := &NetworkSession{
		additionalHeaders: map[string]string{},
		baseURLs:          DefaultBaseURLs(),
		networkClient:     DefaultNetworkClient(),
		retryStrategy:     DefaultBoxRetryStrategy(),
		sanitizer:         sanitizer.Default(),
		relay:             relays.NewZapRelay(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithSessionRelay(r relayDTO.RelayInterface) SessionOption {
	return func(s *NetworkSession) {
		if r != nil {
			s.relay = r
		}
	}
}

func WithSessionNetworkClient(c dto.NetworkClient) SessionOption {
	return func(s *NetworkSession) {
		if c != nil {
			s.networkClient = c
		}
	}
}

func WithSessionRetryStrategy(r RetryStrategy) SessionOption {
	return func(s *NetworkSession) {
		if r != nil {
			s.retryStrategy = r
		}
	}
}

func WithSessionAuthentication(a Authentication) SessionOption {
	return func(s *NetworkSession) { s.auth = a }
}

func WithSessionMetrics(m *Metrics) SessionOption {
	return func(s *NetworkSession) { s.metrics = m }
}

func WithSessionTimeout(d time.Duration) SessionOption {
	return func(s *NetworkSession) { s.timeout = d }
}

func WithSessionBaseURLs(b BaseURLs) SessionOption {
	return func(s *NetworkSession) { s.baseURLs = b }
}

func (s *NetworkSession) clone() *NetworkSession {
	c := *s
	c.additionalHeaders = maps.Clone(s.additionalHeaders)
	if s.proxy != nil {
		p := *s.proxy
		c.proxy = &p
	}
	if s.proxyURL != nil {
		u := *s.proxyURL
		c.proxyURL = &u
	}
	return &c
}

func (s *NetworkSession) AdditionalHeaders() map[string]string {
	return maps.Clone(s.additionalHeaders)
}
func (s *NetworkSession) BaseURLs() BaseURLs                      { return s.baseURLs }
func (s *NetworkSession) NetworkClient() dto.NetworkClient        { return s.networkClient }
func (s *NetworkSession) RetryStrategy() RetryStrategy            { return s.retryStrategy }
func (s *NetworkSession) DataSanitizer() *sanitizer.DataSanitizer { return s.sanitizer }
func (s *NetworkSession) Authentication() Authentication          { return s.auth }
func (s *NetworkSession) Relay() relayDTO.RelayInterface          { return s.relay }
func (s *NetworkSession) Metrics() *Metrics                       { return s.metrics }
func (s *NetworkSession) Timeout() time.Duration                  { return s.timeout }

func (s *NetworkSession) Proxy() *ProxyConfig {
	if s.proxy == nil {
		return nil
	}
	p := *s.proxy
	return &p
}

func (s *NetworkSession) ProxyURL() *url.URL {
	if s.proxyURL == nil {
		return nil
	}
	u := *s.proxyURL
	return &u
}

// WithAdditionalHeaders merges headers over the existing ones.
func (s *NetworkSession) WithAdditionalHeaders(headers map[string]string) *NetworkSession {
	c := s.clone()
	if c.additionalHeaders == nil {
		c.additionalHeaders = map[string]string{}
	}
	for k, v := range headers {
		c.additionalHeaders[k] = v
	}
	return c
}

// WithCustomBaseURLs replaces the base URLs. Empty fields keep their value.
func (s *NetworkSession) WithCustomBaseURLs(b BaseURLs) *NetworkSession {
	c := s.clone()
	if b.BaseURL != "" {
		c.baseURLs.BaseURL = b.BaseURL
	}
	if b.UploadURL != "" {
		c.baseURLs.UploadURL = b.UploadURL
	}
	if b.OAuth2URL != "" {
		c.baseURLs.OAuth2URL = b.OAuth2URL
	}
	return c
}

func (s *NetworkSession) WithProxy(p ProxyConfig) (*NetworkSession, error) {
	u, err := p.ProxyURL()
	if err != nil {
		return nil, err
	}
	c := s.clone()
	c.proxy = &p
	c.proxyURL = u
	return c, nil
}

func (s *NetworkSession) WithNetworkClient(client dto.NetworkClient) *NetworkSession {
	c := s.clone()
	if client == nil {
		client = DefaultNetworkClient()
	}
	c.networkClient = client
	return c
}

func (s *NetworkSession) WithRetryStrategy(r RetryStrategy) *NetworkSession {
	c := s.clone()
	if r == nil {
		r = DefaultBoxRetryStrategy()
	}
	c.retryStrategy = r
	return c
}

func (s *NetworkSession) WithDataSanitizer(ds *sanitizer.DataSanitizer) *NetworkSession {
	c := s.clone()
	if ds == nil {
		ds = sanitizer.Default()
	}
	c.sanitizer = ds
	return c
}

func (s *NetworkSession) WithAuthentication(a Authentication) *NetworkSession {
	c := s.clone()
	c.auth = a
	return c
}

func (s *NetworkSession) WithRelay(r relayDTO.RelayInterface) *NetworkSession {
	c := s.clone()
	if r == nil {
		r = relays.NewZapRelay(nil)
	}
	c.relay = r
	return c
}

func (s *NetworkSession) WithMetrics(m *Metrics) *NetworkSession {
	c := s.clone()
	c.metrics = m
	return c
}

func (s *NetworkSession) WithTimeout(d time.Duration) *NetworkSession {
	c := s.clone()
	c.timeout = d
	return c
}
