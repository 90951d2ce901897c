// Package degrade tracks downstream health and substitutes synthetic
// responses when a downstream is known to be failing.
//
// The Manager keeps a ServiceStatus per named downstream. When a service is
// marked unavailable, ExecuteWithFallback serves the service's registered
// mock generator instead of dialing an already-struggling downstream. A
// single successful real call fully heals the service.
//
// Mock generators may simulate latency and an injected failure rate so code
// exercising degraded mode still observes occasional failures. Mock mode is
// an explicit configuration value; when disabled, a degraded call surfaces
// fault.ErrNoFallback instead.
//
// Recovery probing is optional: services registered with a prober are
// re-checked on the configured interval, with concurrent probes deduplicated
// so only one hits the downstream.
package degrade
