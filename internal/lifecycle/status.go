// Package lifecycle defines task and session statuses and the legal
// transitions between them.
package lifecycle

import "fmt"

// TaskStatus is the execution status of a single task.
type TaskStatus string

const (
	Pending    TaskStatus = "pending"
	InProgress TaskStatus = "in_progress"
	Completed  TaskStatus = "completed"
	Failed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s TaskStatus) IsTerminal() bool {
	return s == Completed || s == Failed
}

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case Pending, InProgress, Completed, Failed:
		return true
	}
	return false
}

// ParseTaskStatus converts a stored string into a TaskStatus.
func ParseTaskStatus(v string) (TaskStatus, error) {
	s := TaskStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown task status %q", v)
	}
	return s, nil
}

// SessionStatus is the status of a whole session.
type SessionStatus string

const (
	Active          SessionStatus = "active"
	SessionComplete SessionStatus = "completed"
)

// ParseSessionStatus converts a stored string into a SessionStatus.
func ParseSessionStatus(v string) (SessionStatus, error) {
	switch s := SessionStatus(v); s {
	case Active, SessionComplete:
		return s, nil
	}
	return "", fmt.Errorf("unknown session status %q", v)
}
