// Package resilience provides the dispatch guards for downstream calls.
//
// The package implements the patterns the gateway composes around every
// metered downstream call:
//
//   - Circuit Breaker: per-identifier state machine that fails fast once a
//     downstream shows repeated consecutive failures, probing recovery with
//     a single half-open trial after a cooldown.
//
//   - Retry: bounded exponential backoff with jitter, gated by a
//     retryability predicate so permanent failures and fast rejections are
//     never retried.
//
//   - Pacer: fixed-interval rate limiter enforcing a minimum spacing between
//     dispatches per operation class. Deliberately not a token bucket: the
//     product contract is "at most K requests per minute", so admitted calls
//     are serialized to one every 60s/K with no burst allowance.
//
//   - Bulkhead: per-class cap on simultaneously in-flight calls with FIFO
//     queueing for waiters.
//
//   - Timeout: per-call deadline independent of retry timing.
//
// Each guard is an explicit, constructible value injected into the request
// executor; none of them hold global state.
//
//	registry := resilience.NewBreakerRegistry(resilience.CircuitBreakerConfig{
//	    MaxFailures:  5,
//	    ResetTimeout: 30 * time.Second,
//	})
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts: 5,
//	    BaseDelay:   500 * time.Millisecond,
//	    Jitter:      true,
//	})
//
//	err := registry.Execute(ctx, "chat.completions", func(ctx context.Context) error {
//	    return retry.Do(ctx, callDownstream).Err
//	})
package resilience
