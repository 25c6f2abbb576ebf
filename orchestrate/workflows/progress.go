package workflows

// ProgressFunc reports batch progress. It is called after each successful
// item with the running success count, the total item count, and the item's
// result. It may be called from several workers concurrently.
type ProgressFunc[TResult any] func(
	completed int,
	total int,
	result TResult,
)
