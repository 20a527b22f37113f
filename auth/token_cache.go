package auth

import (
	"context"
	"sync"
	"time"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"github.com/joy-dx/gobox/relays"
)

// DefaultRefreshBuffer treats tokens this close to expiry as expired.
const DefaultRefreshBuffer = 30 * time.Second

// fetchFunc obtains a brand new token from the identity provider. current is
// whatever storage held when the refresh started, possibly nil.
type fetchFunc func(ctx context.Context, session *network.NetworkSession, current *dto.AccessToken) (*dto.AccessToken, error)

// tokenCache is the cache-then-refresh state machine shared by the
// authentication variants. Only one refresh runs at a time; callers that
// lose the race reuse the winner's token.
type tokenCache struct {
	kind    string
	storage dto.TokenStorage
	buffer  time.Duration
	mu      sync.Mutex
}

func newTokenCache(kind string, storage dto.TokenStorage) *tokenCache {
	if storage == nil {
		storage = NewInMemoryTokenStorage(nil)
	}
	return &tokenCache{kind: kind, storage: storage, buffer: DefaultRefreshBuffer}
}

func (c *tokenCache) get(ctx context.Context) (*dto.AccessToken, error) {
	tok, err := c.storage.Get(ctx)
	if err != nil {
		return nil, dto.NewAuthError("read token storage", err)
	}
	return tok, nil
}

func (c *tokenCache) retrieve(ctx context.Context, session *network.NetworkSession, fetch fetchFunc) (*dto.AccessToken, error) {
	tok, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	if !tok.IsExpired(c.buffer) {
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check after acquiring the lock
	tok, err = c.get(ctx)
	if err != nil {
		return nil, err
	}
	if !tok.IsExpired(c.buffer) {
		return tok, nil
	}
	return c.fetchAndStore(ctx, session, tok, fetch)
}

// refresh always goes to the identity provider unless another caller
// replaced the token while this one waited for the lock.
func (c *tokenCache) refresh(ctx context.Context, session *network.NetworkSession, fetch fetchFunc) (*dto.AccessToken, error) {
	before, err := c.get(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil && !sameToken(before, current) && !current.IsExpired(c.buffer) {
		return current, nil
	}
	return c.fetchAndStore(ctx, session, current, fetch)
}

func (c *tokenCache) fetchAndStore(ctx context.Context, session *network.NetworkSession, current *dto.AccessToken, fetch fetchFunc) (*dto.AccessToken, error) {
	relay := sessionOrDefault(session).Relay()
	tok, err := fetch(ctx, session, current)
	if err != nil {
		relay.Warn(relays.RlyAuth{Kind: c.kind, Msg: "token refresh failed", Err: err.Error()})
		return nil, err
	}
	if err := c.storage.Store(ctx, tok); err != nil {
		return nil, dto.NewAuthError("store token", err)
	}
	relay.Debug(relays.RlyAuth{Kind: c.kind, Msg: "token refreshed"})
	return tok, nil
}

func (c *tokenCache) clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.storage.Clear(ctx); err != nil {
		return dto.NewAuthError("clear token storage", err)
	}
	return nil
}

func sameToken(a, b *dto.AccessToken) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken
}

func sessionOrDefault(session *network.NetworkSession) *network.NetworkSession {
	if session == nil {
		return network.NewNetworkSession()
	}
	return session
}

func bearer(tok *dto.AccessToken) string {
	return "Bearer " + tok.AccessToken
}
