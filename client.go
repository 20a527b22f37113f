// Package gobox is the entry point of the Box SDK core: a Client bundles an
// Authentication with a NetworkSession and exposes the request core, the
// event stream and file downloads.
package gobox

import (
	"context"
	"io"

	"github.com/joy-dx/gobox/config"
	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/events"
	"github.com/joy-dx/gobox/network"
	"github.com/joy-dx/gobox/relays"
	"github.com/joy-dx/gobox/sanitizer"
)

// Client is immutable; every With method returns a new Client. Derived
// clients share download state and listeners with their parent.
type Client struct {
	auth      network.Authentication
	session   *network.NetworkSession
	transfers *transferHub
	events    *events.EventsManager
}

// NewClient wires auth into session. A nil session means defaults.
func NewClient(auth network.Authentication, session *network.NetworkSession) *Client {
	if session == nil {
		session = network.NewNetworkSession()
	}
	return newClient(auth, session, newTransferHub())
}

func newClient(auth network.Authentication, session *network.NetworkSession, hub *transferHub) *Client {
	return &Client{
		auth:      auth,
		session:   session,
		transfers: hub,
		events:    events.NewEventsManager(auth, session),
	}
}

// NewClientFromConfig opens token storage, builds auth and session from
// cfg. The returned closer releases the token storage.
func NewClientFromConfig(ctx context.Context, cfg *config.ClientConfig, opts ...network.SessionOption) (*Client, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	storage, closer, err := cfg.NewTokenStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	auth, err := cfg.NewAuthentication(storage)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	session, err := cfg.NewSession(opts...)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	session.Relay().Debug(relays.RlyNetLog{Msg: "gobox client configured for " + string(cfg.Auth.Type) + " auth"})
	return NewClient(auth, session), closer, nil
}

func (c *Client) Auth() network.Authentication     { return c.auth }
func (c *Client) Session() *network.NetworkSession { return c.session }
func (c *Client) Events() *events.EventsManager    { return c.events }

func (c *Client) derive(session *network.NetworkSession) *Client {
	return newClient(c.auth, session, c.transfers)
}

// WithAsUserHeader makes every call act on behalf of userID.
func (c *Client) WithAsUserHeader(userID string) *Client {
	return c.WithExtraHeaders(map[string]string{"As-User": userID})
}

// WithSuppressedNotifications stops Box from sending emails or webhooks
// for changes made through the returned client.
func (c *Client) WithSuppressedNotifications() *Client {
	return c.WithExtraHeaders(map[string]string{"Box-Notifications": "off"})
}

func (c *Client) WithExtraHeaders(headers map[string]string) *Client {
	return c.derive(c.session.WithAdditionalHeaders(headers))
}

func (c *Client) WithCustomBaseURLs(urls network.BaseURLs) *Client {
	return c.derive(c.session.WithCustomBaseURLs(urls))
}

func (c *Client) WithProxy(proxy network.ProxyConfig) (*Client, error) {
	session, err := c.session.WithProxy(proxy)
	if err != nil {
		return nil, err
	}
	return c.derive(session), nil
}

func (c *Client) WithNetworkClient(nc dto.NetworkClient) *Client {
	return c.derive(c.session.WithNetworkClient(nc))
}

func (c *Client) WithRetryStrategy(r network.RetryStrategy) *Client {
	return c.derive(c.session.WithRetryStrategy(r))
}

func (c *Client) WithDataSanitizer(ds *sanitizer.DataSanitizer) *Client {
	return c.derive(c.session.WithDataSanitizer(ds))
}

// MakeRequest sends opts through the request core. Auth and session default
// to the client's own.
func (c *Client) MakeRequest(ctx context.Context, opts *network.FetchOptions) (*network.FetchResponse, error) {
	if opts == nil {
		return nil, dto.NewSDKError("fetch options are required", nil)
	}
	o := *opts
	if o.Auth == nil {
		o.Auth = c.auth
	}
	if o.Session == nil {
		o.Session = c.session
	}
	return network.Fetch(ctx, &o)
}

// GetEventStream streams events as the client's identity.
func (c *Client) GetEventStream(params dto.GetEventsParams, opts ...events.StreamOption) *events.EventStream {
	return c.events.GetEventStream(params, nil, opts...)
}

// ClientState is a snapshot of a client's settings and transfers.
type ClientState struct {
	BaseURLs        network.BaseURLs                    `json:"base_urls" yaml:"base_urls"`
	ExtraHeaders    map[string]string                   `json:"extra_headers,omitempty" yaml:"extra_headers,omitempty"`
	RequestTimeout  string                              `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	TransfersStatus map[string]dto.TransferNotification `json:"transfers_status,omitempty" yaml:"transfers_status,omitempty"`
}

// State reports the client settings with header values sanitized.
func (c *Client) State() *ClientState {
	st := &ClientState{
		BaseURLs:        c.session.BaseURLs(),
		ExtraHeaders:    c.session.DataSanitizer().SanitizeHeaders(c.session.AdditionalHeaders()),
		TransfersStatus: c.Transfers(),
	}
	if t := c.session.Timeout(); t > 0 {
		st.RequestTimeout = t.String()
	}
	return st
}
