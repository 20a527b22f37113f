package auth

import (
	"context"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"golang.org/x/oauth2"
)

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenStorage dto.TokenStorage
	// BaseURLs is used for the authorize URL, which is built without a
	// session. Token calls use the session's base URLs.
	BaseURLs network.BaseURLs
}

func NewOAuthConfig(clientID, clientSecret string) *OAuthConfig {
	return &OAuthConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		BaseURLs:     network.DefaultBaseURLs(),
	}
}

func (c *OAuthConfig) WithTokenStorage(s dto.TokenStorage) *OAuthConfig {
	c.TokenStorage = s
	return c
}

func (c *OAuthConfig) WithBaseURLs(b network.BaseURLs) *OAuthConfig {
	c.BaseURLs = b
	return c
}

// GetAuthorizeURLOptions overrides parts of the authorize URL. Empty fields
// are left out, ClientID and ResponseType fall back to the config and "code".
type GetAuthorizeURLOptions struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	State        string
	Scope        string
}

// OAuth implements the authorization code flow with refresh tokens.
type OAuth struct {
	cfg   OAuthConfig
	cache *tokenCache
}

func NewOAuth(cfg *OAuthConfig) *OAuth {
	if cfg == nil {
		cfg = NewOAuthConfig("", "")
	}
	c := *cfg
	if c.BaseURLs.OAuth2URL == "" {
		c.BaseURLs = network.DefaultBaseURLs()
	}
	return &OAuth{cfg: c, cache: newTokenCache("oauth", c.TokenStorage)}
}

func (a *OAuth) oauth2Config(session *network.NetworkSession, redirectURI string) *oauth2.Config {
	tokenURL := a.cfg.BaseURLs.BaseURL + "/oauth2/token"
	if session != nil {
		tokenURL = session.BaseURLs().BaseURL + "/oauth2/token"
	}
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.cfg.BaseURLs.OAuth2URL + "/authorize",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// GetAuthorizeURL returns the URL the user visits to grant access.
func (a *OAuth) GetAuthorizeURL(opts GetAuthorizeURLOptions) string {
	var params []oauth2.AuthCodeOption
	if opts.ClientID != "" {
		params = append(params, oauth2.SetAuthURLParam("client_id", opts.ClientID))
	}
	if opts.ResponseType != "" {
		params = append(params, oauth2.SetAuthURLParam("response_type", opts.ResponseType))
	}
	if opts.Scope != "" {
		params = append(params, oauth2.SetAuthURLParam("scope", opts.Scope))
	}
	return a.oauth2Config(nil, opts.RedirectURI).AuthCodeURL(opts.State, params...)
}

// GetTokensAuthorizationCodeGrant exchanges an authorization code for
// tokens and stores them.
func (a *OAuth) GetTokensAuthorizationCodeGrant(ctx context.Context, code string, session *network.NetworkSession) (*dto.AccessToken, error) {
	session = sessionOrDefault(session)
	a.cache.mu.Lock()
	defer a.cache.mu.Unlock()
	return a.cache.fetchAndStore(ctx, session, nil, func(ctx context.Context, session *network.NetworkSession, _ *dto.AccessToken) (*dto.AccessToken, error) {
		t, err := a.oauth2Config(session, "").Exchange(oauth2Context(ctx, session), code)
		if err != nil {
			return nil, asAuthError("exchange authorization code", err)
		}
		return fromOAuth2Token(t), nil
	})
}

func (a *OAuth) fetch(ctx context.Context, session *network.NetworkSession, current *dto.AccessToken) (*dto.AccessToken, error) {
	if current == nil || current.RefreshToken == "" {
		return nil, dto.NewAuthError("access and refresh tokens not available, authenticate before making any API call", dto.ErrNoToken)
	}
	session = sessionOrDefault(session)
	ts := a.oauth2Config(session, "").TokenSource(oauth2Context(ctx, session), &oauth2.Token{RefreshToken: current.RefreshToken})
	t, err := ts.Token()
	if err != nil {
		return nil, asAuthError("refresh oauth token", err)
	}
	return fromOAuth2Token(t), nil
}

// RetrieveToken returns the stored token, refreshing it first when it is
// about to expire.
func (a *OAuth) RetrieveToken(ctx context.Context, session *network.NetworkSession) (*dto.AccessToken, error) {
	return a.cache.retrieve(ctx, session, a.fetch)
}

func (a *OAuth) RefreshToken(ctx context.Context, session *network.NetworkSession) (*dto.AccessToken, error) {
	return a.cache.refresh(ctx, session, a.fetch)
}

func (a *OAuth) RetrieveAuthorizationHeader(ctx context.Context, session *network.NetworkSession) (string, error) {
	tok, err := a.RetrieveToken(ctx, session)
	if err != nil {
		return "", err
	}
	return bearer(tok), nil
}

func (a *OAuth) RevokeToken(ctx context.Context, session *network.NetworkSession) error {
	return revoke(ctx, session, a.cache, a.cfg.ClientID, a.cfg.ClientSecret)
}

func (a *OAuth) DownscopeToken(ctx context.Context, session *network.NetworkSession, scopes []string, opts dto.DownscopeOptions) (*dto.AccessToken, error) {
	tok, err := a.RetrieveToken(ctx, session)
	if err != nil {
		return nil, err
	}
	return downscope(ctx, session, tok, scopes, opts)
}

var _ network.Authentication = (*OAuth)(nil)
