package store

import "errors"

// Store errors shared by all backends.
var (
	// ErrUnsupportedResolution is returned for resolution codes no backend
	// persists. Checked before any I/O.
	ErrUnsupportedResolution = errors.New("unsupported resolution")

	// ErrInvalidInstrument is returned for malformed instrument identifiers.
	ErrInvalidInstrument = errors.New("invalid instrument")

	// ErrInvalidInput is returned when an append batch violates the ordering
	// contract or the tail-collision bound.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned by lookups that require an existing dataset.
	// Plain reads represent a missing dataset as an empty result instead.
	ErrNotFound = errors.New("not found")
)
