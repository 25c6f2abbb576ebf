package pipeline

import "github.com/tailored-agentic-units/backlog/observability"

// Option configures an Executor.
type Option func(*Executor)

// WithObserver overrides the observer named in the configuration.
func WithObserver(obs observability.Observer) Option {
	return func(e *Executor) {
		e.observer = observability.OrNoOp(obs)
	}
}

// WithPersister sets the collaborator that stores final states.
func WithPersister(p Persister) Option {
	return func(e *Executor) {
		e.persister = p
	}
}

// WithNotifier sets the completion callback.
func WithNotifier(n Notifier) Option {
	return func(e *Executor) {
		e.notifier = n
	}
}

// WithSleeper replaces the backoff sleeper. Tests use it to skip delays.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleeper = s
		}
	}
}
