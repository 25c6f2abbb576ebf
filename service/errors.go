package service

import (
	"errors"

	"github.com/tailored-agentic-units/backlog/store"
)

var (
	ErrClosed            = errors.New("service is closed")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrDuplicateTask     = errors.New("task is already running")

	// ErrNotFound is returned by Get for an id that is neither running nor
	// stored.
	ErrNotFound = store.ErrNotFound
)
