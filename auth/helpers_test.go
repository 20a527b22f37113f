package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/joy-dx/gobox/network"
	"golang.org/x/crypto/pbkdf2"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func rsaTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

// encryptPKCS8 produces an "ENCRYPTED PRIVATE KEY" PEM using PBES2 with
// PBKDF2-HMAC-SHA256 and AES-256-CBC.
func encryptPKCS8(t *testing.T, key *rsa.PrivateKey, passphrase string) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	salt := make([]byte, 16)
	iv := make([]byte, aes.BlockSize)
	_, _ = rand.Read(salt)
	_, _ = rand.Read(iv)

	dk := pbkdf2.Key([]byte(passphrase), salt, 2048, 32, sha256.New)
	block, _ := aes.NewCipher(dk)
	pad := aes.BlockSize - len(der)%aes.BlockSize
	plain := append(append([]byte{}, der...), make([]byte, pad)...)
	for i := len(der); i < len(plain); i++ {
		plain[i] = byte(pad)
	}
	enc := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc, plain)

	mustMarshal := func(v any) []byte {
		b, err := asn1.Marshal(v)
		if err != nil {
			t.Fatalf("asn1: %v", err)
		}
		return b
	}
	kdf := mustMarshal(pbkdf2Params{
		Salt:           salt,
		IterationCount: 2048,
		PRF:            pkix.AlgorithmIdentifier{Algorithm: oidHMACSHA256, Parameters: asn1.NullRawValue},
	})
	ivDER := mustMarshal(iv)
	params := mustMarshal(pbes2Params{
		KeyDerivationFunc: pkix.AlgorithmIdentifier{Algorithm: oidPBKDF2, Parameters: asn1.RawValue{FullBytes: kdf}},
		EncryptionScheme:  pkix.AlgorithmIdentifier{Algorithm: oidAES256CBC, Parameters: asn1.RawValue{FullBytes: ivDER}},
	})
	info := mustMarshal(encryptedPrivateKeyInfo{
		Algo:          pkix.AlgorithmIdentifier{Algorithm: oidPBES2, Parameters: asn1.RawValue{FullBytes: params}},
		EncryptedData: enc,
	})
	return string(pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: info}))
}

// identityServer records the form of every call and answers with respond.
type identityServer struct {
	*httptest.Server
	mu      sync.Mutex
	forms   []url.Values
	paths   []string
	headers []http.Header
}

func newIdentityServer(t *testing.T, respond func(w http.ResponseWriter, r *http.Request, form url.Values)) *identityServer {
	t.Helper()
	s := &identityServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.forms = append(s.forms, r.PostForm)
		s.paths = append(s.paths, r.URL.Path)
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()
		respond(w, r, r.PostForm)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *identityServer) calls() ([]string, []url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...), append([]url.Values(nil), s.forms...)
}

func (s *identityServer) requestHeaders() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

func (s *identityServer) session() *network.NetworkSession {
	return network.NewNetworkSession(
		network.WithSessionBaseURLs(network.BaseURLs{BaseURL: s.URL, UploadURL: s.URL, OAuth2URL: s.URL + "/oauth2"}),
		network.WithSessionRetryStrategy(network.NoRetryStrategy{}),
	)
}

func writeToken(w http.ResponseWriter, token string, extra map[string]any) {
	body := map[string]any{
		"access_token": token,
		"expires_in":   3600,
		"token_type":   "bearer",
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": code + " description"})
}
