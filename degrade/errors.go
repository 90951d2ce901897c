package degrade

import "errors"

// Sentinel errors for degradation operations.
var (
	// ErrServiceNotFound is returned for an unregistered service name.
	ErrServiceNotFound = errors.New("degrade: service not registered")

	// ErrNoProber is returned when probing a service registered without a prober.
	ErrNoProber = errors.New("degrade: service has no prober")

	// ErrMockFailure is the injected failure returned by a mock generator
	// simulating an unreliable downstream.
	ErrMockFailure = errors.New("degrade: simulated mock failure")
)
