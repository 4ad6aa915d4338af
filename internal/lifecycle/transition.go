package lifecycle

import "fmt"

// transitions lists every legal move. in_progress -> pending is only used to
// revert work that was interrupted or abandoned by a crashed process.
var transitions = map[TaskStatus][]TaskStatus{
	Pending:    {InProgress},
	InProgress: {Completed, Failed, Pending},
}

// TransitionError reports an illegal status change.
type TransitionError struct {
	From TaskStatus
	To   TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid task transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a status change and returns the new status.
func Transition(from, to TaskStatus) (TaskStatus, error) {
	if !CanTransition(from, to) {
		return from, &TransitionError{From: from, To: to}
	}
	return to, nil
}
