package state

// Status is the pipeline-level status.
type Status string

const (
	StatusInitialized       Status = "Initialized"
	StatusExecuting         Status = "Executing"
	StatusCompleted         Status = "Completed"
	StatusCompletedDegraded Status = "CompletedDegraded"
	StatusAborted           Status = "Aborted"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedDegraded, StatusAborted:
		return true
	default:
		return false
	}
}

func (s Status) canTransition(to Status) bool {
	switch s {
	case StatusInitialized:
		return to == StatusExecuting
	case StatusExecuting:
		return to.Terminal()
	default:
		return false
	}
}

// NodeStatus is the per-node execution status.
type NodeStatus string

const (
	NodePending            NodeStatus = "Pending"
	NodeRunning            NodeStatus = "Running"
	NodeSucceeded          NodeStatus = "Succeeded"
	NodeFailed             NodeStatus = "Failed"
	NodeRetrying           NodeStatus = "Retrying"
	NodeFailedWithFallback NodeStatus = "FailedWithFallback"
	NodeFailedFinal        NodeStatus = "FailedFinal"
	NodeSkipped            NodeStatus = "Skipped"
)

var nodeTransitions = map[NodeStatus][]NodeStatus{
	NodePending:  {NodeRunning, NodeSkipped},
	NodeRunning:  {NodeSucceeded, NodeFailed},
	NodeFailed:   {NodeRetrying, NodeFailedWithFallback, NodeFailedFinal},
	NodeRetrying: {NodeRunning, NodeFailedWithFallback, NodeFailedFinal},
}

// Terminal reports whether the node has reached an outcome.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeSucceeded, NodeFailedWithFallback, NodeFailedFinal, NodeSkipped:
		return true
	default:
		return false
	}
}

// Degraded reports whether the outcome degrades the pipeline result.
func (s NodeStatus) Degraded() bool {
	switch s {
	case NodeFailedWithFallback, NodeFailedFinal, NodeSkipped:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a node may move from one status to another.
func CanTransition(from, to NodeStatus) bool {
	for _, allowed := range nodeTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
