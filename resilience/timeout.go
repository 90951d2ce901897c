package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/llmgate/fault"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the operation.
	// Default: 60 seconds
	Timeout time.Duration
}

// Timeout wraps downstream calls with a deadline. An expired deadline
// surfaces as fault.ErrTimeout, which classifies as transient so the retry
// engine treats it like any other recoverable downstream failure.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	// Apply defaults
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Timeout{config: config}
}

// Execute runs the operation with a timeout.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	if op == nil {
		return ErrNilOperation
	}

	_, err := t.ExecuteValue(ctx, func(ctx context.Context) (any, error) {
		return nil, op(ctx)
	})
	return err
}

type attemptResult struct {
	value any
	err   error
}

// ExecuteValue runs a value-producing operation with a timeout. When the
// deadline expires the attempt is abandoned: its eventual value is dropped,
// never delivered to the caller. An attempt that outlives its deadline must
// therefore not be observable through any shared state.
func (t *Timeout) ExecuteValue(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	if op == nil {
		return nil, ErrNilOperation
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan attemptResult, 1)

	go func() {
		value, err := op(ctx)
		done <- attemptResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		if errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fault.ErrTimeout
		}
		if res.err != nil {
			return nil, res.err
		}
		return res.value, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fault.ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// ExecuteWithTimeout is a convenience function to run an operation with timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	t := NewTimeout(TimeoutConfig{Timeout: timeout})
	return t.Execute(ctx, op)
}
