package utils

import (
	"context"
	"errors"
)

// IsTemporaryErr reports whether a transport failure is worth another
// attempt. Refused, dropped and reset connections all are, whatever their
// Temporary() says; the retry strategy bounds how often. Caller
// cancellation and deadlines never are.
func IsTemporaryErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
