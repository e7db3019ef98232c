package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("domain: not found")

	// ErrStale is returned when cached data is older than its TTL and
	// no fresh snapshot could be produced.
	ErrStale = errors.New("domain: snapshot stale")

	// ErrSourceUnavailable is returned when a market source cannot be
	// reached or returns an unusable response.
	ErrSourceUnavailable = errors.New("domain: source unavailable")

	// ErrInvalidInput is returned when an operation receives
	// arguments that fail validation.
	ErrInvalidInput = errors.New("domain: invalid input")
)
