package config

import (
	"context"
	"fmt"
	"io"

	"github.com/joy-dx/gobox/auth"
	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"github.com/joy-dx/gobox/tokenstore"
)

func (c *ClientConfig) RetryStrategy() network.RetryStrategy {
	if c.Retry.Disabled {
		return network.NoRetryStrategy{}
	}
	return network.DefaultBoxRetryStrategy().
		WithMaxAttempts(c.Retry.MaxAttempts).
		WithMaxRetriesOnException(c.Retry.MaxRetriesOnException).
		WithBaseInterval(c.Retry.BaseInterval).
		WithRandomizationFactor(c.Retry.RandomizationFactor).
		WithMaxDelay(c.Retry.MaxDelay)
}

// NewSession builds a session from the network settings. opts are applied
// after the configured ones.
func (c *ClientConfig) NewSession(opts ...network.SessionOption) (*network.NetworkSession, error) {
	base := []network.SessionOption{
		network.WithSessionBaseURLs(c.BaseURLs),
		network.WithSessionRetryStrategy(c.RetryStrategy()),
		network.WithSessionTimeout(c.RequestTimeout),
	}
	session := network.NewNetworkSession(append(base, opts...)...)
	if len(c.ExtraHeaders) > 0 {
		session = session.WithAdditionalHeaders(c.ExtraHeaders)
	}
	if c.Proxy != nil {
		var err error
		if session, err = session.WithProxy(*c.Proxy); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// NewTokenStorage opens the configured storage. The closer releases
// database handles and is never nil.
func (c *ClientConfig) NewTokenStorage(ctx context.Context) (dto.TokenStorage, io.Closer, error) {
	switch c.TokenStorage.Type {
	case "", StorageMemory:
		return auth.NewInMemoryTokenStorage(nil), nopCloser{}, nil
	case StorageFile:
		return auth.NewFileWithInMemoryCacheTokenStorage(c.TokenStorage.Path), nopCloser{}, nil
	case StorageSQLite:
		s, err := tokenstore.Open(ctx, tokenstore.DialectSQLite, c.TokenStorage.Path, c.TokenStorage.Key)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case StoragePostgres:
		s, err := tokenstore.Open(ctx, tokenstore.DialectPostgres, c.TokenStorage.DSN, c.TokenStorage.Key)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown token_storage.type %q", c.TokenStorage.Type)
	}
}

// NewAuthentication builds the configured variant on top of storage.
func (c *ClientConfig) NewAuthentication(storage dto.TokenStorage) (network.Authentication, error) {
	a := c.Auth
	switch a.Type {
	case AuthDeveloper:
		return auth.NewDeveloperTokenAuth(a.DeveloperToken, auth.DeveloperTokenConfig{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
		}), nil
	case AuthCCG:
		cfg := auth.NewCCGConfig(a.ClientID, a.ClientSecret).
			WithEnterpriseID(a.EnterpriseID).
			WithUserID(a.UserID).
			WithTokenStorage(storage)
		return auth.NewCCGAuth(cfg), nil
	case AuthJWT:
		cfg, err := auth.JWTConfigFromFile(a.JWTConfigFile)
		if err != nil {
			return nil, err
		}
		// Explicit subjects override the file
		if a.UserID != "" {
			cfg.EnterpriseID = ""
			cfg.UserID = a.UserID
		} else if a.EnterpriseID != "" {
			cfg.EnterpriseID = a.EnterpriseID
		}
		return auth.NewJWTAuth(cfg.WithTokenStorage(storage)), nil
	case AuthOAuth:
		cfg := auth.NewOAuthConfig(a.ClientID, a.ClientSecret).
			WithBaseURLs(c.BaseURLs).
			WithTokenStorage(storage)
		return auth.NewOAuth(cfg), nil
	default:
		return nil, fmt.Errorf("unknown auth.type %q", a.Type)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
