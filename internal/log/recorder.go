package log

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/orchestrator"
	"github.com/berth-dev/todoagent/internal/session"
)

// Recorder writes orchestrator progress to the event log. Write failures
// are reported to warn and never stop the run.
type Recorder struct {
	logger *Logger
	warn   io.Writer
	run    string

	mu      sync.Mutex
	started map[int]time.Time
}

// NewRecorder returns a Recorder tagging every event with a fresh run id.
func NewRecorder(logger *Logger, warn io.Writer) *Recorder {
	return &Recorder{
		logger:  logger,
		warn:    warn,
		run:     uuid.NewString(),
		started: make(map[int]time.Time),
	}
}

// RunID identifies this process's events in the log.
func (r *Recorder) RunID() string {
	return r.run
}

func (r *Recorder) append(e LogEvent) {
	e.Run = r.run
	if err := r.logger.Append(e); err != nil {
		fmt.Fprintf(r.warn, "Warning: failed to log %s: %v\n", e.Event, err)
	}
}

func (r *Recorder) SessionStarted(sessionID, objective string) {
	r.append(LogEvent{Event: EventSessionStarted, Session: sessionID, Objective: objective})
}

func (r *Recorder) PlanCreated(sess *session.Session) {
	r.append(LogEvent{Event: EventPlanCreated, Session: sess.ID, Total: len(sess.Tasks)})
}

func (r *Recorder) SessionResumed(sess *session.Session) {
	r.append(LogEvent{
		Event:     EventSessionResumed,
		Session:   sess.ID,
		Objective: sess.Objective,
		Status:    string(sess.Status),
		Completed: len(sess.TasksWithStatus(lifecycle.Completed)),
		Failed:    len(sess.TasksWithStatus(lifecycle.Failed)),
		Total:     len(sess.Tasks),
	})
}

func (r *Recorder) TaskStarted(sessionID string, task session.Task) {
	r.mu.Lock()
	r.started[task.SequenceID] = time.Now()
	r.mu.Unlock()
	r.append(LogEvent{Event: EventTaskStarted, Session: sessionID, Task: task.SequenceID, Title: task.Title})
}

func (r *Recorder) TaskFinished(sessionID string, task session.Task) {
	r.mu.Lock()
	start, ok := r.started[task.SequenceID]
	delete(r.started, task.SequenceID)
	r.mu.Unlock()

	e := LogEvent{
		Event:      EventTaskCompleted,
		Session:    sessionID,
		Task:       task.SequenceID,
		Title:      task.Title,
		Status:     string(task.Status),
		Reflection: task.Reflection,
	}
	if task.Status == lifecycle.Failed {
		e.Event = EventTaskFailed
		e.Error = task.Result
	}
	if ok {
		e.DurationMs = time.Since(start).Milliseconds()
	}
	r.append(e)
}

func (r *Recorder) Interrupted(sessionID string, reverted []int) {
	r.append(LogEvent{Event: EventSessionInterrupted, Session: sessionID, Reverted: reverted})
}

func (r *Recorder) Finished(report *orchestrator.Report) {
	r.append(LogEvent{
		Event:   EventSessionFinished,
		Session: report.SessionID,
		Status:  string(report.Outcome),
		Failed:  len(report.Failures),
	})
}
