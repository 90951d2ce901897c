// Package fault defines the shared error taxonomy for the gateway.
//
// Every failure that crosses a component boundary is classified into one of
// four classes:
//
//   - Transient: network errors, timeouts, and throttling/server statuses
//     (429, 5xx). Safe to retry.
//
//   - Permanent: authentication failures, content-policy violations, and
//     malformed input. Retrying cannot help.
//
//   - Rejected: side-effect-free fast failures produced by this layer itself
//     (open circuit, insufficient credits). Never retried.
//
//   - Unavailable: a degraded service with fallback disabled or no mock
//     registered. Fatal to the request.
//
// Classification drives the retry engine's default predicate, the severity
// at which failures are logged, and whether the executor attempts a degraded
// fallback.
package fault
