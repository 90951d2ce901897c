package admission

import "errors"

// Sentinel errors for admission operations.
var (
	// ErrUnknownClass is returned for an operation class without a
	// configured credit cost.
	ErrUnknownClass = errors.New("admission: unknown operation class")

	// ErrInvalidQuantity is returned for a non-positive request quantity.
	ErrInvalidQuantity = errors.New("admission: quantity must be positive")

	// ErrLedgerUnavailable is returned when the ledger cannot be read.
	// Admission fails closed on ledger errors.
	ErrLedgerUnavailable = errors.New("admission: usage ledger unavailable")

	// ErrInvalidToken is returned for an unparsable or unverified token.
	ErrInvalidToken = errors.New("admission: invalid token")

	// ErrMissingSubject is returned for a valid token without a subject claim.
	ErrMissingSubject = errors.New("admission: token has no subject")
)
