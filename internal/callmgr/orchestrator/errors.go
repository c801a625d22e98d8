package orchestrator

import "errors"

// Sentinel errors for use with errors.Is.
var (
	// ErrCallNotFound indicates the call id is unknown to the orchestrator.
	ErrCallNotFound = errors.New("call not found")

	// ErrUnknownSubscription indicates no candidate carries the requested
	// subscription.
	ErrUnknownSubscription = errors.New("unknown subscription")

	// ErrInvalidState indicates an invalid state for the operation.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrEmptyAddress indicates an origination request without an address.
	ErrEmptyAddress = errors.New("empty address")
)
