package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the gateway packages.
var (
	// ErrCircuitOpen is returned when a circuit breaker rejects a call
	// without dispatching it. Never retryable.
	ErrCircuitOpen = errors.New("fault: circuit breaker is open")

	// ErrInsufficientCredits is returned when admission is denied.
	// Surfaced directly to the caller; never retried, never degraded.
	ErrInsufficientCredits = errors.New("fault: insufficient credits")

	// ErrNoFallback is returned when a degraded service has no registered
	// mock generator or mock mode is disabled.
	ErrNoFallback = errors.New("fault: service unavailable and no fallback available")

	// ErrTimeout is returned when a downstream call exceeds its deadline.
	ErrTimeout = errors.New("fault: downstream call timed out")
)

// Class categorizes a failure for retry and fallback decisions.
type Class int

const (
	// ClassUnknown is the class for unclassifiable errors.
	ClassUnknown Class = iota
	// ClassTransient errors are safe to retry.
	ClassTransient
	// ClassPermanent errors will fail identically on retry.
	ClassPermanent
	// ClassRejected errors are fast rejections produced by this layer.
	ClassRejected
	// ClassUnavailable errors indicate degradation with no fallback.
	ClassUnavailable
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassRejected:
		return "rejected"
	case ClassUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// DownstreamError wraps a failure from the downstream generation API with
// the HTTP-like status code the client reported, if any.
type DownstreamError struct {
	// StatusCode is the HTTP-like status reported by the downstream,
	// or 0 when the failure never produced a response.
	StatusCode int

	// Op names the downstream operation, e.g. "chat.completions".
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DownstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fault: downstream %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fault: downstream %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// Transient status codes: throttling and server-side failures.
var transientStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Permanent status codes: auth and client-side failures.
var permanentStatuses = map[int]bool{
	400: true,
	401: true,
	403: true,
	422: true,
}

// Message substrings that indicate a transient network failure when no
// status code is available.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporarily",
	"unavailable",
	"eof",
}

// Message substrings that indicate a permanent failure.
var permanentMarkers = []string{
	"content policy",
	"content_policy",
	"invalid api key",
	"unauthorized",
	"forbidden",
}

// Classify determines the failure class of an error.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	switch {
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrInsufficientCredits):
		return ClassRejected
	case errors.Is(err, ErrNoFallback):
		return ClassUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.Is(err, context.Canceled):
		return ClassPermanent
	}

	var de *DownstreamError
	if errors.As(err, &de) && de.StatusCode > 0 {
		if transientStatuses[de.StatusCode] {
			return ClassTransient
		}
		if permanentStatuses[de.StatusCode] {
			return ClassPermanent
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return ClassPermanent
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return ClassTransient
		}
	}

	return ClassUnknown
}

// Retryable reports whether an error is safe to retry. This is the default
// predicate for the retry engine: only transient failures qualify, so open
// circuits and admission denials always fail fast.
func Retryable(err error) bool {
	return Classify(err) == ClassTransient
}
