package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"golang.org/x/oauth2/jws"
)

type JWTAlgorithm string

const (
	RS256 JWTAlgorithm = "RS256"
	RS384 JWTAlgorithm = "RS384"
	RS512 JWTAlgorithm = "RS512"
)

// JWTAudience is the aud claim Box expects regardless of the base URL.
const JWTAudience = "https://api.box.com/oauth2/token"

// jwtLifetime bounds how long an assertion is valid.
const jwtLifetime = 30 * time.Second

type JWTConfig struct {
	ClientID             string
	ClientSecret         string
	JWTKeyID             string
	PrivateKey           string
	PrivateKeyPassphrase string
	// EnterpriseID takes precedence over UserID when both are set.
	EnterpriseID        string
	UserID              string
	Algorithm           JWTAlgorithm
	TokenStorage        dto.TokenStorage
	PrivateKeyDecryptor PrivateKeyDecryptor
}

func NewJWTConfig(clientID, clientSecret, keyID, privateKey, passphrase string) *JWTConfig {
	return &JWTConfig{
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		JWTKeyID:             keyID,
		PrivateKey:           privateKey,
		PrivateKeyPassphrase: passphrase,
		Algorithm:            RS256,
	}
}

func (c *JWTConfig) WithEnterpriseID(id string) *JWTConfig {
	c.EnterpriseID = id
	return c
}

func (c *JWTConfig) WithUserID(id string) *JWTConfig {
	c.UserID = id
	return c
}

func (c *JWTConfig) WithAlgorithm(alg JWTAlgorithm) *JWTConfig {
	c.Algorithm = alg
	return c
}

func (c *JWTConfig) WithTokenStorage(s dto.TokenStorage) *JWTConfig {
	c.TokenStorage = s
	return c
}

func (c *JWTConfig) WithPrivateKeyDecryptor(d PrivateKeyDecryptor) *JWTConfig {
	c.PrivateKeyDecryptor = d
	return c
}

// jwtConfigFile mirrors the JSON settings file downloaded from the Box
// developer console.
type jwtConfigFile struct {
	EnterpriseID   dto.FlexString `json:"enterpriseID"`
	UserID         dto.FlexString `json:"userID"`
	BoxAppSettings struct {
		ClientID     string `json:"clientID"`
		ClientSecret string `json:"clientSecret"`
		AppAuth      struct {
			PublicKeyID string `json:"publicKeyID"`
			PrivateKey  string `json:"privateKey"`
			Passphrase  string `json:"passphrase"`
		} `json:"appAuth"`
	} `json:"boxAppSettings"`
}

func JWTConfigFromJSON(data []byte) (*JWTConfig, error) {
	var f jwtConfigFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse JWT config: %w", err)
	}
	s := f.BoxAppSettings
	if s.ClientID == "" || s.AppAuth.PrivateKey == "" {
		return nil, fmt.Errorf("JWT config is missing boxAppSettings.clientID or appAuth.privateKey")
	}
	return NewJWTConfig(s.ClientID, s.ClientSecret, s.AppAuth.PublicKeyID, s.AppAuth.PrivateKey, s.AppAuth.Passphrase).
		WithEnterpriseID(f.EnterpriseID.String()).
		WithUserID(f.UserID.String()), nil
}

func JWTConfigFromFile(path string) (*JWTConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JWT config: %w", err)
	}
	return JWTConfigFromJSON(b)
}

// JWTAuth signs an assertion with the app's private key and exchanges it
// for an access token.
type JWTAuth struct {
	cfg         JWTConfig
	subjectType string
	subjectID   string
	cache       *tokenCache

	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
}

func NewJWTAuth(cfg *JWTConfig) *JWTAuth {
	if cfg == nil {
		cfg = NewJWTConfig("", "", "", "", "")
	}
	c := *cfg
	if c.Algorithm == "" {
		c.Algorithm = RS256
	}
	if c.PrivateKeyDecryptor == nil {
		c.PrivateKeyDecryptor = DefaultPrivateKeyDecryptor{}
	}
	a := &JWTAuth{cfg: c, cache: newTokenCache("jwt", c.TokenStorage)}
	if c.EnterpriseID != "" {
		a.subjectType, a.subjectID = dto.SubjectTypeEnterprise, c.EnterpriseID
	} else {
		a.subjectType, a.subjectID = dto.SubjectTypeUser, c.UserID
	}
	return a
}

func (a *JWTAuth) Subject() (string, string) { return a.subjectType, a.subjectID }

func (a *JWTAuth) WithUserSubject(userID string, storage dto.TokenStorage) *JWTAuth {
	cfg := a.cfg
	cfg.UserID, cfg.EnterpriseID, cfg.TokenStorage = userID, "", storage
	return NewJWTAuth(&cfg)
}

func (a *JWTAuth) WithEnterpriseSubject(enterpriseID string, storage dto.TokenStorage) *JWTAuth {
	cfg := a.cfg
	cfg.UserID, cfg.EnterpriseID, cfg.TokenStorage = "", enterpriseID, storage
	return NewJWTAuth(&cfg)
}

func (a *JWTAuth) privateKey() (*rsa.PrivateKey, error) {
	a.keyOnce.Do(func() {
		a.key, a.keyErr = a.cfg.PrivateKeyDecryptor.DecryptPrivateKey(a.cfg.PrivateKey, a.cfg.PrivateKeyPassphrase)
	})
	return a.key, a.keyErr
}

// assertion builds the signed JWT sent with the jwt-bearer grant.
func (a *JWTAuth) assertion(now time.Time) (string, error) {
	key, err := a.privateKey()
	if err != nil {
		return "", dto.NewAuthError("load JWT private key", err)
	}
	header := &jws.Header{Algorithm: string(a.cfg.Algorithm), Typ: "JWT", KeyID: a.cfg.JWTKeyID}
	claims := &jws.ClaimSet{
		Iss: a.cfg.ClientID,
		Sub: a.subjectID,
		Aud: JWTAudience,
		Iat: now.Unix(),
		Exp: now.Add(jwtLifetime).Unix(),
		PrivateClaims: map[string]any{
			"box_sub_type": a.subjectType,
			"jti":          uuid.NewString(),
		},
	}

	var hash crypto.Hash
	switch a.cfg.Algorithm {
	case RS256:
		signed, err := jws.Encode(header, claims, key)
		if err != nil {
			return "", dto.NewAuthError("sign JWT assertion", err)
		}
		return signed, nil
	case RS384:
		hash = crypto.SHA384
	case RS512:
		hash = crypto.SHA512
	default:
		return "", dto.NewAuthError(fmt.Sprintf("unsupported JWT algorithm %q", a.cfg.Algorithm), nil)
	}
	signed, err := jws.EncodeWithSigner(header, claims, func(data []byte) ([]byte, error) {
		h := hash.New()
		h.Write(data)
		return rsa.SignPKCS1v15(rand.Reader, key, hash, h.Sum(nil))
	})
	if err != nil {
		return "", dto.NewAuthError("sign JWT assertion", err)
	}
	return signed, nil
}

func (a *JWTAuth) fetch(ctx context.Context, session *network.NetworkSession, _ *dto.AccessToken) (*dto.AccessToken, error) {
	assertion, err := a.assertion(time.Now())
	if err != nil {
		return nil, err
	}
	return NewAuthorizationManager(session).RequestAccessToken(ctx, dto.TokenRequest{
		GrantType:    dto.GrantTypeJWTBearer,
		Assertion:    assertion,
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
	})
}

func (a *JWTAuth) RetrieveToken(ctx context.Context, session *network.NetworkSession) (*dto.AccessToken, error) {
	return a.cache.retrieve(ctx, session, a.fetch)
}

func (a *JWTAuth) RefreshToken(ctx context.Context, session *network.NetworkSession) (*dto.AccessToken, error) {
	return a.cache.refresh(ctx, session, a.fetch)
}

func (a *JWTAuth) RetrieveAuthorizationHeader(ctx context.Context, session *network.NetworkSession) (string, error) {
	tok, err := a.RetrieveToken(ctx, session)
	if err != nil {
		return "", err
	}
	return bearer(tok), nil
}

func (a *JWTAuth) RevokeToken(ctx context.Context, session *network.NetworkSession) error {
	return revoke(ctx, session, a.cache, a.cfg.ClientID, a.cfg.ClientSecret)
}

func (a *JWTAuth) DownscopeToken(ctx context.Context, session *network.NetworkSession, scopes []string, opts dto.DownscopeOptions) (*dto.AccessToken, error) {
	tok, err := a.RetrieveToken(ctx, session)
	if err != nil {
		return nil, err
	}
	return downscope(ctx, session, tok, scopes, opts)
}

var _ network.Authentication = (*JWTAuth)(nil)
