// Package errclass defines the closed error taxonomy that crosses
// component boundaries in the installation backend. Provider-specific
// errors are classified at the edge (inside the LLM Gateway, the TTS
// Renderer, and the wave pool); nothing past those edges ever sees a
// raw provider error.
package errclass

import (
	"context"
	"errors"
	"net/http"
)

// Class is one of the seven taxonomy values. No other values are valid.
type Class string

const (
	Network     Class = "network"
	Timeout     Class = "timeout"
	RateLimit   Class = "rate_limit"
	ServerError Class = "server_error"
	TTSError    Class = "tts_error"
	WaveError   Class = "wave_error"
	Unknown     Class = "unknown"
)

// Retryable reports whether the LLM Gateway should retry a call that
// failed with this class.
func (c Class) Retryable() bool {
	switch c {
	case Network, Timeout, RateLimit:
		return true
	default:
		return false
	}
}

// ClassifyHTTPStatus maps an upstream HTTP status code to a taxonomy
// class, for providers reached over plain HTTP.
func ClassifyHTTPStatus(status int) Class {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return Timeout
	case status >= 500:
		return ServerError
	default:
		return Unknown
	}
}

// Classify maps a Go error value (typically returned by an HTTP client
// or context deadline) to a taxonomy class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, context.Canceled) {
		return Network
	}
	var classified interface{ Class() Class }
	if errors.As(err, &classified) {
		return classified.Class()
	}
	return Unknown
}
