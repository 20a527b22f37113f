package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"github.com/joy-dx/gobox/utils"
	"golang.org/x/oauth2"
)

// AuthorizationManager calls the token and revoke endpoints through the
// dispatch core. Calls never carry an Authorization header.
type AuthorizationManager struct {
	session *network.NetworkSession
}

func NewAuthorizationManager(session *network.NetworkSession) *AuthorizationManager {
	// Identity calls must not recurse into the session's own authentication
	return &AuthorizationManager{session: sessionOrDefault(session).WithAuthentication(nil)}
}

// RequestAccessToken posts req to <base url>/oauth2/token.
func (m *AuthorizationManager) RequestAccessToken(ctx context.Context, req dto.TokenRequest) (*dto.AccessToken, error) {
	opts := network.NewFetchOptions(m.session.BaseURLs().BaseURL+"/oauth2/token", http.MethodPost).
		WithData(req.Form()).
		WithContentType(utils.ContentTypeForm).
		WithSession(m.session)

	resp, err := network.Fetch(ctx, opts)
	if err != nil {
		return nil, asAuthError("request access token ("+req.GrantType+")", err)
	}
	var tok dto.AccessToken
	if err := resp.Decode(&tok); err != nil {
		return nil, dto.NewAuthError("decode access token", err)
	}
	if tok.AccessToken == "" {
		return nil, dto.NewAuthError("token endpoint returned no access token", nil)
	}
	return tok.WithIssuedAt(time.Now()), nil
}

// RevokeAccessToken posts the token to <base url>/oauth2/revoke.
func (m *AuthorizationManager) RevokeAccessToken(ctx context.Context, clientID, clientSecret, token string) error {
	form := map[string]string{"token": token}
	if clientID != "" {
		form["client_id"] = clientID
	}
	if clientSecret != "" {
		form["client_secret"] = clientSecret
	}
	opts := network.NewFetchOptions(m.session.BaseURLs().BaseURL+"/oauth2/revoke", http.MethodPost).
		WithData(form).
		WithContentType(utils.ContentTypeForm).
		WithResponseFormat(network.ResponseFormatNoContent).
		WithSession(m.session)
	if _, err := network.Fetch(ctx, opts); err != nil {
		return asAuthError("revoke access token", err)
	}
	return nil
}

// downscope exchanges tok for a narrower one. The stored token is untouched.
func downscope(ctx context.Context, session *network.NetworkSession, tok *dto.AccessToken, scopes []string, opts dto.DownscopeOptions) (*dto.AccessToken, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, dto.NewAuthError("no access token is available", dto.ErrNoToken)
	}
	return NewAuthorizationManager(session).RequestAccessToken(ctx, dto.TokenRequest{
		GrantType:        dto.GrantTypeTokenExchange,
		SubjectToken:     tok.AccessToken,
		SubjectTokenType: dto.TokenTypeAccessToken,
		Scope:            strings.Join(scopes, " "),
		Resource:         opts.Resource,
		BoxSharedLink:    opts.SharedLink,
	})
}

// revoke revokes the stored token, if any, and clears the cache. The
// server call is best-effort: the cache is cleared even when it fails and
// the revoke error is still returned.
func revoke(ctx context.Context, session *network.NetworkSession, cache *tokenCache, clientID, clientSecret string) error {
	tok, err := cache.get(ctx)
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	revokeErr := NewAuthorizationManager(session).RevokeAccessToken(ctx, clientID, clientSecret, tok.AccessToken)
	if err := cache.clear(ctx); err != nil {
		return errors.Join(revokeErr, err)
	}
	return revokeErr
}

func asAuthError(msg string, err error) error {
	var authErr *dto.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	ae := dto.NewAuthError(msg, err)
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			ae.StatusCode = re.Response.StatusCode
		}
		ae.Code = re.ErrorCode
	}
	return ae
}

// oauth2Context routes golang.org/x/oauth2 through the session's network
// client.
func oauth2Context(ctx context.Context, session *network.NetworkSession) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, network.NewRoundTripper(session).HTTPClient())
}

func fromOAuth2Token(t *oauth2.Token) *dto.AccessToken {
	tok := &dto.AccessToken{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
		Expiry:       t.Expiry,
	}
	if v, ok := t.Extra("issued_token_type").(string); ok {
		tok.IssuedTokenType = v
	}
	if tok.TokenType == "" {
		tok.TokenType = "bearer"
	}
	return tok
}
