package network

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joy-dx/gobox/utils"
)

// RetryAttempt describes the outcome of one attempt. Status 0 means the
// exchange failed in transport and Err is set; Number then counts transport
// failures only.
type RetryAttempt struct {
	Options *FetchOptions
	Number  int
	Elapsed time.Duration
	Status  int
	Headers http.Header
	Err     error
}

// RetryStrategy decides whether to try again and how long to wait first.
type RetryStrategy interface {
	ShouldRetry(a RetryAttempt) (time.Duration, bool)
}

type BoxRetryStrategy struct {
	MaxAttempts           int
	MaxRetriesOnException int
	BaseInterval          time.Duration
	RandomizationFactor   float64
	MaxDelay              time.Duration
	// Rand overrides the jitter source, mostly for tests.
	Rand func() float64
}

func DefaultBoxRetryStrategy() *BoxRetryStrategy {
	return &BoxRetryStrategy{
		MaxAttempts:           5,
		MaxRetriesOnException: 2,
		BaseInterval:          time.Second,
		RandomizationFactor:   0.5,
		MaxDelay:              60 * time.Second,
	}
}

func (b *BoxRetryStrategy) WithMaxAttempts(n int) *BoxRetryStrategy {
	b.MaxAttempts = n
	return b
}
func (b *BoxRetryStrategy) WithMaxRetriesOnException(n int) *BoxRetryStrategy {
	b.MaxRetriesOnException = n
	return b
}
func (b *BoxRetryStrategy) WithBaseInterval(d time.Duration) *BoxRetryStrategy {
	b.BaseInterval = d
	return b
}
func (b *BoxRetryStrategy) WithRandomizationFactor(f float64) *BoxRetryStrategy {
	b.RandomizationFactor = f
	return b
}
func (b *BoxRetryStrategy) WithMaxDelay(d time.Duration) *BoxRetryStrategy {
	b.MaxDelay = d
	return b
}

func (b *BoxRetryStrategy) ShouldRetry(a RetryAttempt) (time.Duration, bool) {
	if a.Status == 0 {
		if a.Number > b.MaxRetriesOnException {
			return 0, false
		}
		return b.delay(a), true
	}
	if a.Number >= b.MaxAttempts {
		return 0, false
	}
	if !IsRetryableStatus(a.Status, a.Headers) {
		return 0, false
	}
	return b.delay(a), true
}

func (b *BoxRetryStrategy) delay(a RetryAttempt) time.Duration {
	if d, ok := ParseRetryAfter(a.Headers.Get("Retry-After"), time.Now()); ok {
		return d
	}
	return utils.ExponentialBackoff{
		Base:                b.BaseInterval,
		RandomizationFactor: b.RandomizationFactor,
		Max:                 b.MaxDelay,
		Rand:                b.Rand,
	}.Delay(a.Number)
}

// IsRetryableStatus is true for 429, any 5xx and 202 carrying Retry-After.
func IsRetryableStatus(status int, headers http.Header) bool {
	switch {
	case status == http.StatusAccepted:
		return headers.Get("Retry-After") != ""
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	}
	return false
}

// ParseRetryAfter accepts delta seconds, decimal seconds or an HTTP date.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, true
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// NoRetryStrategy never retries.
type NoRetryStrategy struct{}

func (NoRetryStrategy) ShouldRetry(RetryAttempt) (time.Duration, bool) { return 0, false }
