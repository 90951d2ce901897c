// Package observe provides telemetry for the gateway: OpenTelemetry tracing
// and metrics plus a structured JSON logger, wired through a single Observer.
package observe
