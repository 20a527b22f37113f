package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/joy-dx/gobox/sanitizer"
)

var (
	ErrNonSeekableStream = errors.New("request body stream cannot be rewound for retry")
	ErrNoToken           = errors.New("no access token available")
)

// SDKError is the root of every error the library returns.
type SDKError struct {
	Message   string
	Timestamp time.Time
	Cause     error
}

func NewSDKError(message string, cause error) *SDKError {
	return &SDKError{Message: message, Timestamp: time.Now(), Cause: cause}
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *SDKError) Unwrap() error { return e.Cause }

type RequestInfo struct {
	Method      string
	URL         string
	QueryParams map[string]string
	Headers     http.Header
	Body        string
}

type ResponseInfo struct {
	StatusCode  int
	Headers     http.Header
	Body        json.RawMessage
	RawBody     string
	Code        string
	Message     string
	ContextInfo map[string]any
	RequestID   string
	HelpURL     string
}

// APIError is returned for any final non-success HTTP response.
type APIError struct {
	SDKError
	Request          RequestInfo
	Response         ResponseInfo
	Attempts         int
	RetriesExhausted bool
	Sanitizer        *sanitizer.DataSanitizer
}

// apiErrorBody is the standard Box error payload.
type apiErrorBody struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	ContextInfo map[string]any `json:"context_info"`
	RequestID   string         `json:"request_id"`
	HelpURL     string         `json:"help_url"`
}

// NewAPIError builds the error from a raw response body, extracting the Box
// error payload when present.
func NewAPIError(req RequestInfo, status int, headers http.Header, body []byte, s *sanitizer.DataSanitizer) *APIError {
	resp := ResponseInfo{StatusCode: status, Headers: headers, RawBody: string(body)}
	var payload apiErrorBody
	if len(body) > 0 && json.Valid(body) {
		resp.Body = json.RawMessage(body)
		if err := json.Unmarshal(body, &payload); err == nil {
			resp.Code = payload.Code
			resp.Message = payload.Message
			resp.ContextInfo = payload.ContextInfo
			resp.RequestID = payload.RequestID
			resp.HelpURL = payload.HelpURL
		}
	}
	if s == nil {
		s = sanitizer.Default()
	}
	msg := fmt.Sprintf("%d %s; Request ID: %s", status, resp.Message, resp.RequestID)
	return &APIError{
		SDKError:  SDKError{Message: msg, Timestamp: time.Now()},
		Request:   req,
		Response:  resp,
		Sanitizer: s,
	}
}

func (e *APIError) Error() string { return e.Message }

// Detail renders the request and response with sensitive values redacted.
func (e *APIError) Detail() string {
	s := e.Sanitizer
	if s == nil {
		s = sanitizer.Default()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Timestamp: %s\nMessage: %s", e.Timestamp.Format(time.RFC3339), e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", e.Cause)
	}
	b.WriteString("\nRequest:")
	fmt.Fprintf(&b, "\n\tMethod: %s\n\tURL: %s", e.Request.Method, e.Request.URL)
	fmt.Fprintf(&b, "\n\tQuery params: %s", formatMap(s.SanitizeHeaders(e.Request.QueryParams)))
	fmt.Fprintf(&b, "\n\tHeaders: %s", formatHeader(s.SanitizeHTTPHeader(e.Request.Headers)))
	fmt.Fprintf(&b, "\n\tBody: %s", e.Request.Body)
	b.WriteString("\nResponse:")
	fmt.Fprintf(&b, "\n\tStatus code: %d", e.Response.StatusCode)
	fmt.Fprintf(&b, "\n\tHeaders: %s", formatHeader(s.SanitizeHTTPHeader(e.Response.Headers)))
	fmt.Fprintf(&b, "\n\tCode: %s", e.Response.Code)
	fmt.Fprintf(&b, "\n\tContext Info: %v", e.Response.ContextInfo)
	fmt.Fprintf(&b, "\n\tRequest Id: %s", e.Response.RequestID)
	fmt.Fprintf(&b, "\n\tHelp Url: %s", e.Response.HelpURL)
	if len(e.Response.Body) > 0 {
		sanitized, _ := json.Marshal(s.SanitizeBody(e.Response.Body))
		fmt.Fprintf(&b, "\n\tBody: %s", sanitized)
	} else {
		fmt.Fprintf(&b, "\n\tBody: %s", e.Response.RawBody)
	}
	return b.String()
}

// AuthError reports a failure of the identity provider or of token
// acquisition.
type AuthError struct {
	SDKError
	StatusCode int
	Code       string
}

func NewAuthError(message string, cause error) *AuthError {
	ae := &AuthError{SDKError: SDKError{Message: message, Timestamp: time.Now(), Cause: cause}}
	var apiErr *APIError
	if errors.As(cause, &apiErr) {
		ae.StatusCode = apiErr.Response.StatusCode
		ae.Code = apiErr.Response.Code
	}
	return ae
}

// SerializationError is returned when a success response cannot be decoded.
type SerializationError struct {
	SDKError
	Body string
}

func NewSerializationError(message string, body []byte, cause error) *SerializationError {
	preview := string(body)
	if len(preview) > 512 {
		preview = preview[:512]
	}
	return &SerializationError{
		SDKError: SDKError{Message: message, Timestamp: time.Now(), Cause: cause},
		Body:     preview,
	}
}

func IsRetriesExhausted(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RetriesExhausted
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Response.StatusCode
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	return 0
}

func formatMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatHeader(h http.Header) string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = strings.Join(v, ",")
	}
	return formatMap(flat)
}
