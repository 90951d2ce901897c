package degrade

import (
	"context"
	"math/rand/v2"
	"time"
)

// GeneratorConfig shapes a mock generator's simulated behavior.
type GeneratorConfig struct {
	// Latency is the simulated response time. A positive value sleeps up
	// to that long (uniformly random) before returning.
	Latency time.Duration

	// SuccessRate in [0,1] is the fraction of mock calls that succeed.
	// Default: 1.0. Values below 1 inject ErrMockFailure so callers
	// exercising degraded mode still observe occasional failures.
	SuccessRate float64
}

// NewGenerator wraps a pure synthesis function with simulated latency and
// an injected failure rate.
func NewGenerator(cfg GeneratorConfig, synthesize func(ctx context.Context) (any, error)) Generator {
	if cfg.SuccessRate <= 0 || cfg.SuccessRate > 1 {
		cfg.SuccessRate = 1.0
	}

	return func(ctx context.Context) (any, error) {
		if cfg.Latency > 0 {
			// #nosec G404 -- simulated latency, not security sensitive.
			wait := time.Duration(rand.Int64N(int64(cfg.Latency)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		// #nosec G404 -- simulated flakiness, not security sensitive.
		if cfg.SuccessRate < 1.0 && rand.Float64() > cfg.SuccessRate {
			return nil, ErrMockFailure
		}

		return synthesize(ctx)
	}
}

// StaticGenerator returns a Generator that always produces the given value.
// Convenient for registering simple canned responses.
func StaticGenerator(value any) Generator {
	return func(ctx context.Context) (any, error) {
		return value, nil
	}
}
