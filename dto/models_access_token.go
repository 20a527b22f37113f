package dto

import (
	"encoding/json"
	"time"
)

// AccessToken is an immutable credential value. Refreshing replaces the
// stored pointer rather than mutating fields.
type AccessToken struct {
	AccessToken     string          `json:"access_token,omitempty"`
	ExpiresIn       int64           `json:"expires_in,omitempty"`
	TokenType       string          `json:"token_type,omitempty"`
	RestrictedTo    json.RawMessage `json:"restricted_to,omitempty"`
	RefreshToken    string          `json:"refresh_token,omitempty"`
	IssuedTokenType string          `json:"issued_token_type,omitempty"`
	// Expiry is derived from ExpiresIn when the token is received.
	Expiry time.Time `json:"expires_at,omitempty"`
}

// WithIssuedAt returns a copy whose Expiry is computed from ExpiresIn.
func (t AccessToken) WithIssuedAt(issued time.Time) *AccessToken {
	if t.ExpiresIn > 0 && t.Expiry.IsZero() {
		t.Expiry = issued.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	if t.TokenType == "" {
		t.TokenType = "bearer"
	}
	return &t
}

// IsExpired returns true if the token is missing, close to or past expiry.
func (t *AccessToken) IsExpired(buffer time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		// Tokens with no expiry (developer tokens) are considered indefinitely valid
		return false
	}
	return time.Now().After(t.Expiry.Add(-buffer))
}

// TokenRequest is the form body of a POST to the token endpoint.
type TokenRequest struct {
	GrantType        string
	ClientID         string
	ClientSecret     string
	Code             string
	RefreshToken     string
	Assertion        string
	SubjectToken     string
	SubjectTokenType string
	ActorToken       string
	ActorTokenType   string
	Scope            string
	Resource         string
	BoxSubjectType   string
	BoxSubjectID     string
	BoxSharedLink    string
}

// Form returns the non-empty fields as form values.
func (r TokenRequest) Form() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("grant_type", r.GrantType)
	set("client_id", r.ClientID)
	set("client_secret", r.ClientSecret)
	set("code", r.Code)
	set("refresh_token", r.RefreshToken)
	set("assertion", r.Assertion)
	set("subject_token", r.SubjectToken)
	set("subject_token_type", r.SubjectTokenType)
	set("actor_token", r.ActorToken)
	set("actor_token_type", r.ActorTokenType)
	set("scope", r.Scope)
	set("resource", r.Resource)
	set("box_subject_type", r.BoxSubjectType)
	set("box_subject_id", r.BoxSubjectID)
	set("box_shared_link", r.BoxSharedLink)
	return out
}

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	GrantTypeTokenExchange     = "urn:ietf:params:oauth:grant-type:token-exchange"

	TokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"

	SubjectTypeEnterprise = "enterprise"
	SubjectTypeUser       = "user"
)

// DownscopeOptions narrows a downscoped token to one item.
type DownscopeOptions struct {
	// Resource full URL of a file or folder, e.g. https://api.box.com/2.0/files/123
	Resource   string
	SharedLink string
}
