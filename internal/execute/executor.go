// Package execute runs a single task against a model and reports how it went.
package execute

import (
	"context"

	taskcontext "github.com/berth-dev/todoagent/internal/context"
	"github.com/berth-dev/todoagent/internal/lifecycle"
)

// Executor performs one task given the work completed before it.
//
// A returned error means the call itself broke down (cancellation,
// timeout, a crash in the agent); an Outcome means the agent finished and
// reported back.
type Executor interface {
	Execute(ctx context.Context, task string, prior []taskcontext.Entry) (Outcome, error)
}

// Outcome is either a *Report or an *ErrorReport.
type Outcome interface {
	outcome()
}

// Report is a structured result from the agent. Status is Completed or
// Failed.
type Report struct {
	Task       string
	Status     lifecycle.TaskStatus
	Result     string
	Reflection string
}

// ErrorReport is returned when the agent could not produce a structured
// result.
type ErrorReport struct {
	Message string
}

func (*Report) outcome()      {}
func (*ErrorReport) outcome() {}
