// Package sanitizer redacts secrets from headers and bodies before they
// reach logs or error messages.
package sanitizer

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

const Redacted = "---[redacted]---"

var defaultKeys = []string{
	"authorization",
	"access_token",
	"refresh_token",
	"subject_token",
	"token",
	"client_id",
	"client_secret",
	"shared_link",
	"download_url",
	"jwt_private_key",
	"jwt_private_key_passphrase",
	"password",
}

// DataSanitizer is immutable; a zero value redacts nothing.
type DataSanitizer struct {
	keys map[string]struct{}
}

// Default returns a sanitizer with the standard sensitive keys.
func Default() *DataSanitizer {
	return New(defaultKeys...)
}

func New(keys ...string) *DataSanitizer {
	s := &DataSanitizer{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.keys[strings.ToLower(k)] = struct{}{}
	}
	return s
}

// WithKeys returns a copy that also redacts keys.
func (s *DataSanitizer) WithKeys(keys ...string) *DataSanitizer {
	next := New(keys...)
	if s != nil {
		for k := range s.keys {
			next.keys[k] = struct{}{}
		}
	}
	return next
}

func (s *DataSanitizer) IsSensitive(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.keys[strings.ToLower(key)]
	return ok
}

func (s *DataSanitizer) SanitizeHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if s.IsSensitive(k) {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}

func (s *DataSanitizer) SanitizeHTTPHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := make(http.Header, len(h))
	for k, vs := range h {
		if s.IsSensitive(k) {
			out[k] = []string{Redacted}
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// SanitizeBody walks maps and slices and returns a redacted copy. Raw JSON
// is decoded first; undecodable input is returned untouched.
func (s *DataSanitizer) SanitizeBody(body any) any {
	switch v := body.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return s.sanitizeJSON(v)
	case []byte:
		return s.sanitizeJSON(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			// only string values are secrets; objects are walked
			if _, ok := val.(string); ok && s.IsSensitive(k) {
				out[k] = Redacted
				continue
			}
			out[k] = s.SanitizeBody(val)
		}
		return out
	case map[string]string:
		return s.SanitizeHeaders(v)
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = s.SanitizeBody(val)
		}
		return out
	default:
		return body
	}
}

func (s *DataSanitizer) sanitizeJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return s.SanitizeBody(decoded)
}

// SanitizeForm redacts sensitive fields of a URL-encoded body. Input that
// does not parse is replaced wholesale.
func (s *DataSanitizer) SanitizeForm(raw string) string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Redacted
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			if s.IsSensitive(k) {
				b.WriteString(Redacted)
			} else {
				b.WriteString(url.QueryEscape(v))
			}
		}
	}
	return b.String()
}
