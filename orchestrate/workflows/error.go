package workflows

import "fmt"

// TaskError is the failure of one batch item. Index is the item's position in
// the slice passed to ProcessBatch.
type TaskError[TItem any] struct {
	Index int
	Item  TItem
	Err   error
}

func (e TaskError[TItem]) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e TaskError[TItem]) Unwrap() error { return e.Err }

// BatchResult holds successes and failures, each in item order.
type BatchResult[TItem, TResult any] struct {
	Results []TResult
	Errors  []TaskError[TItem]
}

// BatchError is returned when a fail-fast batch saw a failure or when no item
// succeeded.
type BatchError[TItem any] struct {
	Errors []TaskError[TItem]
}

func (e *BatchError[TItem]) Error() string {
	switch len(e.Errors) {
	case 0:
		return "batch failed"
	case 1:
		return "batch failed: " + e.Errors[0].Error()
	default:
		return fmt.Sprintf("batch failed: %d items, first %v", len(e.Errors), e.Errors[0])
	}
}

// Unwrap exposes every item error to errors.Is and errors.As.
func (e *BatchError[TItem]) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, taskErr := range e.Errors {
		errs[i] = taskErr.Err
	}
	return errs
}
