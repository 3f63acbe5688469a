package cloudflare

import (
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 10 * time.Second
)

// BackoffDelay returns min(base * 2^attempt * (0.5 + jitter/2), max) where
// attempt is zero-indexed and jitter is in [0, 1).
func BackoffDelay(base, max time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	scale := 0.5 + jitter/2

	delay := float64(base) * math.Pow(2, float64(attempt)) * scale
	if math.IsInf(delay, 0) || delay >= float64(max) {
		return max
	}
	return time.Duration(delay)
}

// jitteredBackoff adapts BackoffDelay to retryablehttp. rnd returns values in
// [0, 1) and defaults to math/rand.
func jitteredBackoff(rnd func() float64) retryablehttp.Backoff {
	if rnd == nil {
		rnd = rand.Float64
	}
	return func(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
		return BackoffDelay(min, max, attemptNum, rnd())
	}
}
