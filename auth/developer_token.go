package auth

import (
	"context"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
)

// DeveloperTokenConfig carries the optional app credentials needed to
// revoke a developer token.
type DeveloperTokenConfig struct {
	ClientID     string
	ClientSecret string
}

// DeveloperTokenAuth authenticates with a static, short lived developer
// token. It cannot be refreshed.
type DeveloperTokenAuth struct {
	cfg   DeveloperTokenConfig
	cache *tokenCache
}

func NewDeveloperTokenAuth(token string, cfg DeveloperTokenConfig) *DeveloperTokenAuth {
	storage := NewInMemoryTokenStorage(&dto.AccessToken{AccessToken: token, TokenType: "bearer"})
	return &DeveloperTokenAuth{cfg: cfg, cache: newTokenCache("developer_token", storage)}
}

func (a *DeveloperTokenAuth) RetrieveToken(ctx context.Context, _ *network.NetworkSession) (*dto.AccessToken, error) {
	tok, err := a.cache.get(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, dto.NewAuthError("no access token is available", dto.ErrNoToken)
	}
	return tok, nil
}

func (a *DeveloperTokenAuth) RefreshToken(context.Context, *network.NetworkSession) (*dto.AccessToken, error) {
	return nil, dto.NewAuthError("developer token has expired, provide a new one", nil)
}

func (a *DeveloperTokenAuth) RetrieveAuthorizationHeader(ctx context.Context, session *network.NetworkSession) (string, error) {
	tok, err := a.RetrieveToken(ctx, session)
	if err != nil {
		return "", err
	}
	return bearer(tok), nil
}

func (a *DeveloperTokenAuth) RevokeToken(ctx context.Context, session *network.NetworkSession) error {
	return revoke(ctx, session, a.cache, a.cfg.ClientID, a.cfg.ClientSecret)
}

func (a *DeveloperTokenAuth) DownscopeToken(ctx context.Context, session *network.NetworkSession, scopes []string, opts dto.DownscopeOptions) (*dto.AccessToken, error) {
	tok, err := a.RetrieveToken(ctx, session)
	if err != nil {
		return nil, err
	}
	return downscope(ctx, session, tok, scopes, opts)
}

var _ network.Authentication = (*DeveloperTokenAuth)(nil)
