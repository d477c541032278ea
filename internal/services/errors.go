package services

import "errors"

// Sentinel errors shared across services. Not-found conditions surface as
// mongo.ErrNoDocuments straight from the storage layer; these cover the
// domain-level failures callers branch on.
var (
	// ErrInvalidState is returned when an operation is attempted against a
	// lease or payment attempt whose lifecycle state does not allow it, for
	// example charging a terminated lease or signing an active one.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrDuplicateCycleCharge is returned when a charge for a billing cycle
	// that already holds one is appended. Jobs treat it as "already done".
	ErrDuplicateCycleCharge = errors.New("cycle already charged")

	// ErrMalformedCallback is returned for gateway callbacks that cannot be
	// matched to a payment attempt or fail signature checks.
	ErrMalformedCallback = errors.New("malformed gateway callback")
)
