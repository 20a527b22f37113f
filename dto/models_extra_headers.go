package dto

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ExtraHeaders is a comma separated key=value string, usable as a flag value
// and as a YAML map.
type ExtraHeaders map[string]string

func (e ExtraHeaders) String() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// Set value should be a comma separated key=value string
func (e ExtraHeaders) Set(s string) error {
	for _, header := range strings.Split(s, ",") {
		header = strings.TrimSpace(header)
		if header == "" {
			continue
		}
		key, value, ok := strings.Cut(header, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("invalid header %q, expected key=value", header)
		}
		e[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return nil
}

func (e ExtraHeaders) Type() string {
	return "ExtraHeaders"
}

// Header converts to canonical http.Header form.
func (e ExtraHeaders) Header() http.Header {
	h := make(http.Header, len(e))
	for k, v := range e {
		h.Set(k, v)
	}
	return h
}
