package utils

import (
	"net/http"
	"strings"
)

func MapToHeader(m map[string]string) http.Header {
	h := make(http.Header)
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// MergeHeaders layers maps in increasing precedence onto dst. Keys are
// matched case-insensitively.
func MergeHeaders(dst http.Header, layers ...map[string]string) http.Header {
	if dst == nil {
		dst = make(http.Header)
	}
	for _, layer := range layers {
		for k, v := range layer {
			dst.Set(k, v)
		}
	}
	return dst
}

// HeaderToMap flattens multi-valued headers with commas.
func HeaderToMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k, v := range h {
		m[k] = strings.Join(v, ",")
	}
	return m
}
