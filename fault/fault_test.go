package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassUnknown},
		{"circuit open", ErrCircuitOpen, ClassRejected},
		{"insufficient credits", ErrInsufficientCredits, ClassRejected},
		{"wrapped circuit open", fmt.Errorf("call failed: %w", ErrCircuitOpen), ClassRejected},
		{"no fallback", ErrNoFallback, ClassUnavailable},
		{"timeout sentinel", ErrTimeout, ClassTransient},
		{"deadline exceeded", context.DeadlineExceeded, ClassTransient},
		{"canceled", context.Canceled, ClassPermanent},
		{"status 429", &DownstreamError{StatusCode: 429, Op: "chat.completions", Err: errors.New("rate limited")}, ClassTransient},
		{"status 500", &DownstreamError{StatusCode: 500, Op: "chat.completions", Err: errors.New("boom")}, ClassTransient},
		{"status 502", &DownstreamError{StatusCode: 502, Op: "images.generate", Err: errors.New("bad gateway")}, ClassTransient},
		{"status 503", &DownstreamError{StatusCode: 503, Op: "audio.speech", Err: errors.New("overloaded")}, ClassTransient},
		{"status 504", &DownstreamError{StatusCode: 504, Op: "chat.completions", Err: errors.New("upstream timeout")}, ClassTransient},
		{"status 401", &DownstreamError{StatusCode: 401, Op: "chat.completions", Err: errors.New("bad key")}, ClassPermanent},
		{"status 403", &DownstreamError{StatusCode: 403, Op: "chat.completions", Err: errors.New("nope")}, ClassPermanent},
		{"status 400", &DownstreamError{StatusCode: 400, Op: "chat.completions", Err: errors.New("malformed")}, ClassPermanent},
		{"network message", errors.New("dial tcp: connection refused"), ClassTransient},
		{"timeout message", errors.New("request timed out"), ClassTransient},
		{"content policy", errors.New("rejected by content policy"), ClassPermanent},
		{"invalid api key", errors.New("invalid API key provided"), ClassPermanent},
		{"opaque", errors.New("something odd"), ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(ErrCircuitOpen) {
		t.Error("Retryable(ErrCircuitOpen) = true, want false")
	}
	if Retryable(ErrInsufficientCredits) {
		t.Error("Retryable(ErrInsufficientCredits) = true, want false")
	}
	if !Retryable(&DownstreamError{StatusCode: 503, Err: errors.New("overloaded")}) {
		t.Error("Retryable(503) = false, want true")
	}
	if Retryable(&DownstreamError{StatusCode: 401, Err: errors.New("bad key")}) {
		t.Error("Retryable(401) = true, want false")
	}
}

func TestDownstreamError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := &DownstreamError{StatusCode: 500, Op: "chat.completions", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestDownstreamError_Error(t *testing.T) {
	withStatus := &DownstreamError{StatusCode: 429, Op: "chat.completions", Err: errors.New("slow down")}
	if got := withStatus.Error(); got != "fault: downstream chat.completions failed with status 429: slow down" {
		t.Errorf("Error() = %q", got)
	}

	noStatus := &DownstreamError{Op: "images.generate", Err: errors.New("dial failed")}
	if got := noStatus.Error(); got != "fault: downstream images.generate failed: dial failed" {
		t.Errorf("Error() = %q", got)
	}
}

func TestClass_String(t *testing.T) {
	tests := []struct {
		class Class
		want  string
	}{
		{ClassTransient, "transient"},
		{ClassPermanent, "permanent"},
		{ClassRejected, "rejected"},
		{ClassUnavailable, "unavailable"},
		{ClassUnknown, "unknown"},
		{Class(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("Class(%d).String() = %q, want %q", tt.class, got, tt.want)
		}
	}
}
