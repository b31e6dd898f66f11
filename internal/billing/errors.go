package billing

import "errors"

var (
	// ErrInvalidSignature is returned when a webhook fails verification.
	ErrInvalidSignature = errors.New("billing: invalid signature")

	// ErrInvalidPayload is returned for undecodable webhook bodies.
	ErrInvalidPayload = errors.New("billing: invalid payload")

	// ErrInvalidEvent is returned for decodable but malformed events.
	ErrInvalidEvent = errors.New("billing: invalid event")

	// ErrEventIgnored marks event types the reconciler does not handle.
	ErrEventIgnored = errors.New("billing: event ignored")

	// ErrProvider wraps failures talking to the billing provider API.
	ErrProvider = errors.New("billing: provider request failed")
)
