package auth

import (
	"context"
	"net/url"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type CCGConfig struct {
	ClientID     string
	ClientSecret string
	EnterpriseID string
	// UserID takes precedence over EnterpriseID when both are set.
	UserID       string
	TokenStorage dto.TokenStorage
}

func NewCCGConfig(clientID, clientSecret string) *CCGConfig {
	return &CCGConfig{ClientID: clientID, ClientSecret: clientSecret}
}

func (c *CCGConfig) WithEnterpriseID(id string) *CCGConfig {
	c.EnterpriseID = id
	return c
}

func (c *CCGConfig) WithUserID(id string) *CCGConfig {
	c.UserID = id
	return c
}

func (c *CCGConfig) WithTokenStorage(s dto.TokenStorage) *CCGConfig {
	c.TokenStorage = s
	return c
}

// CCGAuth uses the client credentials grant with a Box subject.
type CCGAuth struct {
	cfg         CCGConfig
	subjectType string
	subjectID   string
	cache       *tokenCache
}

func NewCCGAuth(cfg *CCGConfig) *CCGAuth {
	if cfg == nil {
		cfg = NewCCGConfig("", "")
	}
	a := &CCGAuth{cfg: *cfg, cache: newTokenCache("ccg", cfg.TokenStorage)}
	if cfg.UserID != "" {
		a.subjectType, a.subjectID = dto.SubjectTypeUser, cfg.UserID
	} else {
		a.subjectType, a.subjectID = dto.SubjectTypeEnterprise, cfg.EnterpriseID
	}
	return a
}

// Subject returns the box_subject_type and box_subject_id sent on refresh.
func (a *CCGAuth) Subject() (string, string) { return a.subjectType, a.subjectID }

// WithUserSubject returns a new CCGAuth acting as userID. A nil storage
// means a fresh in-memory one.
func (a *CCGAuth) WithUserSubject(userID string, storage dto.TokenStorage) *CCGAuth {
	cfg := a.cfg
	cfg.UserID, cfg.EnterpriseID, cfg.TokenStorage = userID, "", storage
	return NewCCGAuth(&cfg)
}

func (a *CCGAuth) WithEnterpriseSubject(enterpriseID string, storage dto.TokenStorage) *CCGAuth {
	cfg := a.cfg
	cfg.UserID, cfg.EnterpriseID, cfg.TokenStorage = "", enterpriseID, storage
	return NewCCGAuth(&cfg)
}

func (a *CCGAuth) fetch(ctx context.Context, session *network.NetworkSession, _ *dto.AccessToken) (*dto.AccessToken, error) {
	session = sessionOrDefault(session)
	cc := &clientcredentials.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		TokenURL:     session.BaseURLs().BaseURL + "/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"box_subject_type": {a.subjectType},
			"box_subject_id":   {a.subjectID},
		},
	}
	t, err := cc.Token(oauth2Context(ctx, session))
	if err != nil {
		return nil, asAuthError("client credentials grant", err)
	}
	return fromOAuth2Token(t), nil
}

func (a *CCGAuth) RetrieveToken(ctx context.Context, session *network.NetworkSession) (*dto.AccessToken, error) {
	return a.cache.retrieve(ctx, session, a.fetch)
}

func (a *CCGAuth) RefreshToken(ctx context.Context, session *network.NetworkSession) (*dto.AccessToken, error) {
	return a.cache.refresh(ctx, session, a.fetch)
}

func (a *CCGAuth) RetrieveAuthorizationHeader(ctx context.Context, session *network.NetworkSession) (string, error) {
	tok, err := a.RetrieveToken(ctx, session)
	if err != nil {
		return "", err
	}
	return bearer(tok), nil
}

func (a *CCGAuth) RevokeToken(ctx context.Context, session *network.NetworkSession) error {
	return revoke(ctx, session, a.cache, a.cfg.ClientID, a.cfg.ClientSecret)
}

func (a *CCGAuth) DownscopeToken(ctx context.Context, session *network.NetworkSession, scopes []string, opts dto.DownscopeOptions) (*dto.AccessToken, error) {
	tok, err := a.RetrieveToken(ctx, session)
	if err != nil {
		return nil, err
	}
	return downscope(ctx, session, tok, scopes, opts)
}

var _ network.Authentication = (*CCGAuth)(nil)
