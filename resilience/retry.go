package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/llmgate/fault"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 500ms
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Factor is the exponential backoff multiplier.
	// Default: 2.0
	Factor float64

	// Jitter adjusts each delay by a uniform random offset of up to ±25%
	// to prevent thundering herd.
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: fault.Retryable (transient failures only, so an open
	// circuit or admission denial is never retried).
	RetryIf func(err error) bool

	// OnRetry is called before each retry wait begins.
	OnRetry func(attempt Attempt)
}

// Attempt records one failed attempt for diagnostics. The attempt log lives
// only for the duration of the call; it is never persisted.
type Attempt struct {
	// Number is the 1-based attempt number that failed.
	Number int

	// Delay is the backoff wait scheduled after this attempt.
	Delay time.Duration

	// Err is the failure for this attempt.
	Err error

	// At is when the attempt resolved.
	At time.Time
}

// Result is the outcome of a retried call.
type Result struct {
	// Success reports whether any attempt succeeded.
	Success bool

	// Attempts is the number of attempts made, including the final one.
	Attempts int

	// TotalDelay is the cumulative backoff time spent waiting.
	TotalDelay time.Duration

	// Err is the final error on failure, nil on success.
	Err error

	// Log holds one entry per failed attempt, for diagnostics only.
	Log []Attempt
}

// Recovered reports a success that needed at least one retry. Useful as an
// alerting signal for flappy downstreams.
func (r Result) Recovered() bool {
	return r.Success && r.Attempts > 1
}

// Retry implements bounded exponential backoff with jitter.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Factor <= 0 {
		config.Factor = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = fault.Retryable
	}

	return &Retry{config: config}
}

// DefaultRetryConfig returns the config used for downstream generation
// calls: 3 attempts, 500ms base, jitter on.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Factor:      2.0,
		Jitter:      true,
	}
}

// Do runs the operation with retry logic and returns the full Result.
func (r *Retry) Do(ctx context.Context, op func(context.Context) error) Result {
	if op == nil {
		return Result{Err: ErrNilOperation}
	}

	res := Result{}

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		res.Attempts = attempt

		err := op(ctx)
		if err == nil {
			res.Success = true
			res.Err = nil
			return res
		}

		res.Err = err

		if !r.config.RetryIf(err) {
			return res
		}

		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.delayFor(attempt)
		entry := Attempt{
			Number: attempt,
			Delay:  delay,
			Err:    err,
			At:     time.Now(),
		}
		res.Log = append(res.Log, entry)

		if r.config.OnRetry != nil {
			r.config.OnRetry(entry)
		}

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(delay):
			res.TotalDelay += delay
		}
	}

	return res
}

// Execute runs the operation and returns only the final error. Convenience
// wrapper for call sites that do not need the attempt accounting.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	return r.Do(ctx, op).Err
}

// delayFor computes the backoff for the given 1-based attempt:
// min(base * factor^(attempt-1), max), then ±25% jitter when enabled.
func (r *Retry) delayFor(attempt int) time.Duration {
	multiplier := math.Pow(r.config.Factor, float64(attempt-1))
	delay := time.Duration(float64(r.config.BaseDelay) * multiplier)

	if delay > r.config.MaxDelay || delay <= 0 {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter && delay > 0 {
		// Uniform offset in [-25%, +25%]
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		offset := (rand.Float64() - 0.5) * 0.5 * float64(delay)
		delay += time.Duration(offset)
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
