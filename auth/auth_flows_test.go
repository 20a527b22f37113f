package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/jws"
)

func TestDeveloperTokenAuth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("header and refresh", func(t *testing.T) {
		t.Parallel()
		a := NewDeveloperTokenAuth("dev-token", DeveloperTokenConfig{})

		h, err := a.RetrieveAuthorizationHeader(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "Bearer dev-token", h)

		_, err = a.RefreshToken(ctx, nil)
		var authErr *dto.AuthError
		require.ErrorAs(t, err, &authErr)
	})

	t.Run("revoke clears the token", func(t *testing.T) {
		t.Parallel()
		srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
			w.WriteHeader(http.StatusOK)
		})
		a := NewDeveloperTokenAuth("dev-token", DeveloperTokenConfig{ClientID: "cid", ClientSecret: "secret"})

		require.NoError(t, a.RevokeToken(ctx, srv.session()))
		_, forms := srv.calls()
		require.Len(t, forms, 1)
		assert.Equal(t, "dev-token", forms[0].Get("token"))

		_, err := a.RetrieveToken(ctx, nil)
		assert.ErrorIs(t, err, dto.ErrNoToken)

		// Nothing stored, nothing to revoke
		require.NoError(t, a.RevokeToken(ctx, srv.session()))
		paths, _ := srv.calls()
		assert.Len(t, paths, 1)
	})

	t.Run("downscope leaves token unchanged", func(t *testing.T) {
		t.Parallel()
		srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
			writeToken(w, "narrow", map[string]any{"issued_token_type": dto.TokenTypeAccessToken})
		})
		a := NewDeveloperTokenAuth("dev-token", DeveloperTokenConfig{})

		tok, err := a.DownscopeToken(ctx, srv.session(), []string{"item_preview", "item_download"},
			dto.DownscopeOptions{Resource: "https://api.box.com/2.0/files/1", SharedLink: "https://app.box.com/s/x"})
		require.NoError(t, err)
		assert.Equal(t, "narrow", tok.AccessToken)

		_, forms := srv.calls()
		require.Len(t, forms, 1)
		f := forms[0]
		assert.Equal(t, dto.GrantTypeTokenExchange, f.Get("grant_type"))
		assert.Equal(t, "dev-token", f.Get("subject_token"))
		assert.Equal(t, dto.TokenTypeAccessToken, f.Get("subject_token_type"))
		assert.Equal(t, "item_preview item_download", f.Get("scope"))
		assert.Equal(t, "https://api.box.com/2.0/files/1", f.Get("resource"))
		assert.Equal(t, "https://app.box.com/s/x", f.Get("box_shared_link"))

		cur, err := a.RetrieveToken(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "dev-token", cur.AccessToken)
	})
}

func TestCCGAuth_Golden(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         *CCGConfig
		derive      func(a *CCGAuth) *CCGAuth
		wantSubType string
		wantSubID   string
	}{
		{
			name:        "enterprise subject",
			cfg:         NewCCGConfig("cid", "secret").WithEnterpriseID("e1"),
			wantSubType: "enterprise",
			wantSubID:   "e1",
		},
		{
			name:        "user wins over enterprise",
			cfg:         NewCCGConfig("cid", "secret").WithEnterpriseID("e1").WithUserID("u1"),
			wantSubType: "user",
			wantSubID:   "u1",
		},
		{
			name:        "derived user subject",
			cfg:         NewCCGConfig("cid", "secret").WithEnterpriseID("e1"),
			derive:      func(a *CCGAuth) *CCGAuth { return a.WithUserSubject("u2", nil) },
			wantSubType: "user",
			wantSubID:   "u2",
		},
		{
			name:        "derived enterprise subject",
			cfg:         NewCCGConfig("cid", "secret").WithUserID("u1"),
			derive:      func(a *CCGAuth) *CCGAuth { return a.WithEnterpriseSubject("e9", nil) },
			wantSubType: "enterprise",
			wantSubID:   "e9",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var n atomic.Int32
			srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
				writeToken(w, fmt.Sprintf("ccg-%d", n.Add(1)), nil)
			})
			a := NewCCGAuth(tt.cfg)
			if tt.derive != nil {
				a = tt.derive(a)
			}
			ctx := context.Background()

			h, err := a.RetrieveAuthorizationHeader(ctx, srv.session())
			require.NoError(t, err)
			assert.Equal(t, "Bearer ccg-1", h)

			// Cached on the second call
			h, err = a.RetrieveAuthorizationHeader(ctx, srv.session())
			require.NoError(t, err)
			assert.Equal(t, "Bearer ccg-1", h)

			tok, err := a.RefreshToken(ctx, srv.session())
			require.NoError(t, err)
			assert.Equal(t, "ccg-2", tok.AccessToken)

			paths, forms := srv.calls()
			require.Len(t, paths, 2)
			f := forms[0]
			assert.Equal(t, "/oauth2/token", paths[0])
			assert.Equal(t, "client_credentials", f.Get("grant_type"))
			assert.Equal(t, "cid", f.Get("client_id"))
			assert.Equal(t, "secret", f.Get("client_secret"))
			assert.Equal(t, tt.wantSubType, f.Get("box_subject_type"))
			assert.Equal(t, tt.wantSubID, f.Get("box_subject_id"))
		})
	}
}

func TestCCGAuth_Failure(t *testing.T) {
	t.Parallel()
	srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client")
	})

	_, err := NewCCGAuth(NewCCGConfig("cid", "bad")).RetrieveToken(context.Background(), srv.session())
	var authErr *dto.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.Equal(t, "invalid_client", authErr.Code)
}

func TestCCGAuth_RevokeThenReauthenticates(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
		if r.URL.Path == "/oauth2/revoke" {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeToken(w, fmt.Sprintf("ccg-%d", n.Add(1)), nil)
	})
	ctx := context.Background()
	a := NewCCGAuth(NewCCGConfig("cid", "secret").WithEnterpriseID("e1"))

	tok, err := a.RetrieveToken(ctx, srv.session())
	require.NoError(t, err)
	assert.Equal(t, "ccg-1", tok.AccessToken)

	require.NoError(t, a.RevokeToken(ctx, srv.session()))

	tok, err = a.RetrieveToken(ctx, srv.session())
	require.NoError(t, err)
	assert.Equal(t, "ccg-2", tok.AccessToken)

	paths, forms := srv.calls()
	assert.Equal(t, []string{"/oauth2/token", "/oauth2/revoke", "/oauth2/token"}, paths)
	assert.Equal(t, "ccg-1", forms[1].Get("token"))
}

func TestCCGAuth_FailedRevokeStillClearsCache(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
		if r.URL.Path == "/oauth2/revoke" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported_token_type"}`))
			return
		}
		writeToken(w, fmt.Sprintf("ccg-%d", n.Add(1)), nil)
	})
	ctx := context.Background()
	a := NewCCGAuth(NewCCGConfig("cid", "secret").WithEnterpriseID("e1"))

	_, err := a.RetrieveToken(ctx, srv.session())
	require.NoError(t, err)

	require.Error(t, a.RevokeToken(ctx, srv.session()))

	tok, err := a.RetrieveToken(ctx, srv.session())
	require.NoError(t, err)
	assert.Equal(t, "ccg-2", tok.AccessToken)

	paths, _ := srv.calls()
	assert.Equal(t, []string{"/oauth2/token", "/oauth2/revoke", "/oauth2/token"}, paths)
}

func TestOAuth_AuthorizeURL(t *testing.T) {
	t.Parallel()
	a := NewOAuth(NewOAuthConfig("cid", "secret"))

	raw := a.GetAuthorizeURL(GetAuthorizeURLOptions{RedirectURI: "https://app.example/cb", State: "xyz", Scope: "root_readwrite"})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://account.box.com/api/oauth2/authorize", u.Scheme+"://"+u.Host+u.Path)
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://app.example/cb", q.Get("redirect_uri"))
	assert.Equal(t, "xyz", q.Get("state"))
	assert.Equal(t, "root_readwrite", q.Get("scope"))

	raw = a.GetAuthorizeURL(GetAuthorizeURLOptions{ClientID: "other"})
	u, err = url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "other", u.Query().Get("client_id"))
	assert.False(t, u.Query().Has("state"))
}

func TestOAuth_Flow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var n atomic.Int32
	srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
		switch form.Get("grant_type") {
		case "authorization_code":
			if form.Get("code") != "good-code" {
				writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
				return
			}
			writeToken(w, "access-1", map[string]any{"refresh_token": "refresh-1"})
		case "refresh_token":
			writeToken(w, fmt.Sprintf("access-r%d", n.Add(1)), map[string]any{"refresh_token": "refresh-2"})
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	a := NewOAuth(NewOAuthConfig("cid", "secret"))

	_, err := a.RetrieveToken(ctx, srv.session())
	require.ErrorIs(t, err, dto.ErrNoToken)

	_, err = a.GetTokensAuthorizationCodeGrant(ctx, "bad-code", srv.session())
	var authErr *dto.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid_grant", authErr.Code)

	tok, err := a.GetTokensAuthorizationCodeGrant(ctx, "good-code", srv.session())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)

	h, err := a.RetrieveAuthorizationHeader(ctx, srv.session())
	require.NoError(t, err)
	assert.Equal(t, "Bearer access-1", h)

	tok, err = a.RefreshToken(ctx, srv.session())
	require.NoError(t, err)
	assert.Equal(t, "access-r1", tok.AccessToken)
	assert.Equal(t, "refresh-2", tok.RefreshToken)

	_, forms := srv.calls()
	last := forms[len(forms)-1]
	assert.Equal(t, "refresh-1", last.Get("refresh_token"))
	assert.Equal(t, "cid", last.Get("client_id"))
}

func TestOAuth_ExpiredTokenRefreshedOnRetrieve(t *testing.T) {
	t.Parallel()
	srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
		writeToken(w, "fresh", map[string]any{"refresh_token": "r2"})
	})
	storage := NewInMemoryTokenStorage(&dto.AccessToken{
		AccessToken:  "expired",
		RefreshToken: "r1",
		Expiry:       time.Now().Add(-time.Minute),
	})
	a := NewOAuth(NewOAuthConfig("cid", "secret").WithTokenStorage(storage))

	tok, err := a.RetrieveToken(context.Background(), srv.session())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	stored, _ := storage.Get(context.Background())
	assert.Equal(t, "fresh", stored.AccessToken)
}

func jwtClaims(t *testing.T, assertion string) map[string]any {
	t.Helper()
	parts := strings.Split(assertion, ".")
	require.Len(t, parts, 3)
	b, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, json.Unmarshal(b, &claims))
	return claims
}

func jwtHeader(t *testing.T, assertion string) map[string]any {
	t.Helper()
	b, err := base64.RawURLEncoding.DecodeString(strings.Split(assertion, ".")[0])
	require.NoError(t, err)
	var h map[string]any
	require.NoError(t, json.Unmarshal(b, &h))
	return h
}

func TestJWTAuth_Golden(t *testing.T) {
	t.Parallel()
	key := rsaTestKey(t)
	pemKey := encryptPKCS8(t, key, "pass")

	tests := []struct {
		name        string
		cfg         func() *JWTConfig
		derive      func(a *JWTAuth) *JWTAuth
		wantAlg     string
		wantSubType string
		wantSub     string
		verify      bool
	}{
		{
			name:        "enterprise RS256",
			cfg:         func() *JWTConfig { return NewJWTConfig("cid", "secret", "kid1", pemKey, "pass").WithEnterpriseID("e1") },
			wantAlg:     "RS256",
			wantSubType: "enterprise",
			wantSub:     "e1",
			verify:      true,
		},
		{
			name: "enterprise wins over user",
			cfg: func() *JWTConfig {
				return NewJWTConfig("cid", "secret", "kid1", pemKey, "pass").WithEnterpriseID("e1").WithUserID("u1")
			},
			wantAlg:     "RS256",
			wantSubType: "enterprise",
			wantSub:     "e1",
			verify:      true,
		},
		{
			name: "user RS512",
			cfg: func() *JWTConfig {
				return NewJWTConfig("cid", "secret", "kid1", pemKey, "pass").WithUserID("u1").WithAlgorithm(RS512)
			},
			wantAlg:     "RS512",
			wantSubType: "user",
			wantSub:     "u1",
		},
		{
			name:        "derived user subject",
			cfg:         func() *JWTConfig { return NewJWTConfig("cid", "secret", "kid1", pemKey, "pass").WithEnterpriseID("e1") },
			derive:      func(a *JWTAuth) *JWTAuth { return a.WithUserSubject("u7", nil) },
			wantAlg:     "RS256",
			wantSubType: "user",
			wantSub:     "u7",
			verify:      true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request, form url.Values) {
				writeToken(w, "jwt-token", nil)
			})
			a := NewJWTAuth(tt.cfg())
			if tt.derive != nil {
				a = tt.derive(a)
			}

			tok, err := a.RetrieveToken(context.Background(), srv.session())
			require.NoError(t, err)
			assert.Equal(t, "jwt-token", tok.AccessToken)

			_, forms := srv.calls()
			require.Len(t, forms, 1)
			f := forms[0]
			assert.Equal(t, dto.GrantTypeJWTBearer, f.Get("grant_type"))
			assert.Equal(t, "cid", f.Get("client_id"))
			assert.Equal(t, "secret", f.Get("client_secret"))

			assertion := f.Get("assertion")
			if tt.verify {
				require.NoError(t, jws.Verify(assertion, &key.PublicKey))
			}
			h := jwtHeader(t, assertion)
			assert.Equal(t, tt.wantAlg, h["alg"])
			assert.Equal(t, "kid1", h["kid"])

			c := jwtClaims(t, assertion)
			assert.Equal(t, "cid", c["iss"])
			assert.Equal(t, tt.wantSub, c["sub"])
			assert.Equal(t, tt.wantSubType, c["box_sub_type"])
			assert.Equal(t, JWTAudience, c["aud"])
			assert.NotEmpty(t, c["jti"])
			exp, iat := c["exp"].(float64), c["iat"].(float64)
			assert.InDelta(t, 30, exp-iat, 1)
		})
	}
}

func TestJWTAuth_BadKeyIsAuthError(t *testing.T) {
	t.Parallel()
	key := rsaTestKey(t)
	a := NewJWTAuth(NewJWTConfig("cid", "secret", "kid", encryptPKCS8(t, key, "right"), "wrong").WithEnterpriseID("e1"))

	_, err := a.RetrieveToken(context.Background(), network.NewNetworkSession())
	var authErr *dto.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, ErrIncorrectPassphrase)
}

func TestJWTConfigFromFile(t *testing.T) {
	t.Parallel()
	body := `{
		"boxAppSettings": {
			"clientID": "cid",
			"clientSecret": "secret",
			"appAuth": {"publicKeyID": "kid", "privateKey": "PEM", "passphrase": "pp"}
		},
		"enterpriseID": "12345"
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := JWTConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, "secret", cfg.ClientSecret)
	assert.Equal(t, "kid", cfg.JWTKeyID)
	assert.Equal(t, "PEM", cfg.PrivateKey)
	assert.Equal(t, "pp", cfg.PrivateKeyPassphrase)
	assert.Equal(t, "12345", cfg.EnterpriseID)
	assert.Empty(t, cfg.UserID)
	assert.Equal(t, RS256, cfg.Algorithm)

	_, err = JWTConfigFromJSON([]byte(`{"boxAppSettings":{}}`))
	require.Error(t, err)
	_, err = JWTConfigFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
