package gateway

import "errors"

// Sentinel errors for the request executor.
var (
	// ErrNilCall is returned for a Request without a Call function.
	ErrNilCall = errors.New("gateway: request call is nil")
)
