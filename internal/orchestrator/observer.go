package orchestrator

import "github.com/berth-dev/todoagent/internal/session"

// Observer is notified as a session progresses. Implementations must not
// block.
type Observer interface {
	SessionStarted(sessionID, objective string)
	PlanCreated(sess *session.Session)
	SessionResumed(sess *session.Session)
	TaskStarted(sessionID string, task session.Task)
	TaskFinished(sessionID string, task session.Task)
	Interrupted(sessionID string, reverted []int)
	Finished(report *Report)
}

// Observers fans every notification out to each observer in order.
type Observers []Observer

func (o Observers) SessionStarted(sessionID, objective string) {
	for _, ob := range o {
		ob.SessionStarted(sessionID, objective)
	}
}

func (o Observers) PlanCreated(sess *session.Session) {
	for _, ob := range o {
		ob.PlanCreated(sess)
	}
}

func (o Observers) SessionResumed(sess *session.Session) {
	for _, ob := range o {
		ob.SessionResumed(sess)
	}
}

func (o Observers) TaskStarted(sessionID string, task session.Task) {
	for _, ob := range o {
		ob.TaskStarted(sessionID, task)
	}
}

func (o Observers) TaskFinished(sessionID string, task session.Task) {
	for _, ob := range o {
		ob.TaskFinished(sessionID, task)
	}
}

func (o Observers) Interrupted(sessionID string, reverted []int) {
	for _, ob := range o {
		ob.Interrupted(sessionID, reverted)
	}
}

func (o Observers) Finished(report *Report) {
	for _, ob := range o {
		ob.Finished(report)
	}
}
