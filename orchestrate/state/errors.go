package state

import "errors"

// Sentinel errors for state mutation.
var (
	ErrSealed            = errors.New("pipeline state is sealed")
	ErrOutputExists      = errors.New("output already written")
	ErrUnknownNode       = errors.New("unknown node")
	ErrInvalidTransition = errors.New("invalid status transition")
)
