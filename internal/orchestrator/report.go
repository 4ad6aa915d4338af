package orchestrator

import (
	"fmt"
	"strings"
)

// Outcome is the terminal state of a session run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// ExecutionFailure describes a task that ended in failed status. Failures
// are recorded and reported, never raised.
type ExecutionFailure struct {
	SequenceID int
	Title      string
	Result     string
	Reflection string
}

// Report is what a caller learns about a session once it stops running.
type Report struct {
	SessionID   string
	Objective   string
	Resumed     bool
	Outcome     Outcome
	FinalResult string
	HasResult   bool
	Failures    []ExecutionFailure
}

// Summary renders the report for humans: the final result, or the list of
// failed tasks with their reflections and error text.
func (r *Report) Summary() string {
	if r.Outcome == OutcomeFailed {
		var b strings.Builder
		b.WriteString("Execution failed:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "- Step #%d %s: %s\n", f.SequenceID, f.Title, f.Reflection)
			if f.Result != "" {
				fmt.Fprintf(&b, "  Task #%d failed: %s\n", f.SequenceID, f.Result)
			}
		}
		return strings.TrimRight(b.String(), "\n")
	}
	if !r.HasResult {
		return "No result recorded."
	}
	return r.FinalResult
}
