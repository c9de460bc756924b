// Package reliability carries the retry/backoff policy the LLM Gateway
// applies to its provider calls. The TTS Renderer does not use it and
// makes a single attempt per clip.
package reliability

import (
	"math"
	"time"

	"github.com/watershed-arts/basin/internal/errclass"
)

// ExponentialBackoff returns the delay before attempt N (1-indexed),
// doubling from base and never exceeding cap.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(cap) {
		return cap
	}
	return time.Duration(d)
}

// IsRetryableClass reports whether the LLM Gateway should retry a call
// that failed with the given taxonomy class.
func IsRetryableClass(c errclass.Class) bool {
	return c.Retryable()
}
