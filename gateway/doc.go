// Package gateway composes the admission and resilience layers into the
// single call path every metered downstream request goes through:
//
//	admit -> concurrency slot -> rate pacing ->
//	    circuit breaker ( retry ( timeout ( downstream call ) ) ) ->
//	        degraded fallback on failure -> usage recording
//
// The ordering is deliberate. The credit check strictly precedes resource
// consumption so a denied user never takes a concurrency slot or a
// rate-limiter tick, and the circuit breaker wraps the retry loop so a
// fast-open breaker avoids even starting retries against a known-bad
// downstream.
//
// All collaborators are injected at construction; the Executor holds no
// global state, so per-tenant or per-test isolation is just another
// Executor value.
package gateway
