package store

import "errors"

// Sentinel errors for store operations.
var (
	ErrNotFound      = errors.New("task not found")
	ErrLoadFailed    = errors.New("load failed")
	ErrSaveFailed    = errors.New("save failed")
	ErrEmptyTaskID   = errors.New("empty task id")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrMissingPath   = errors.New("store path required")
)
