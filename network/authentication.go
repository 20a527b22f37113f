package network

import (
	"context"

	"github.com/joy-dx/gobox/dto"
)

// Authentication supplies and maintains access tokens. The session argument
// carries the network settings used for identity calls; nil means defaults.
type Authentication interface {
	RetrieveToken(ctx context.Context, session *NetworkSession) (*dto.AccessToken, error)
	RefreshToken(ctx context.Context, session *NetworkSession) (*dto.AccessToken, error)
	RetrieveAuthorizationHeader(ctx context.Context, session *NetworkSession) (string, error)
	RevokeToken(ctx context.Context, session *NetworkSession) error
	DownscopeToken(ctx context.Context, session *NetworkSession, scopes []string, opts dto.DownscopeOptions) (*dto.AccessToken, error)
}
