package session

import (
	"errors"
	"time"

	"github.com/berth-dev/todoagent/internal/lifecycle"
)

var (
	// ErrConflict is returned when a session with the same id already exists.
	ErrConflict = errors.New("session already exists")
	// ErrLocked is returned when another live owner holds a session's lease.
	ErrLocked = errors.New("session is locked by another run")
)

// Session is a persisted objective and its ordered tasks.
type Session struct {
	ID        string
	Objective string
	Status    lifecycle.SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task
}

// Task is one unit of work within a session.
type Task struct {
	SequenceID  int
	Title       string
	Content     string
	Status      lifecycle.TaskStatus
	Result      string
	Reflection  string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewTask is the shape of a task at creation time.
type NewTask struct {
	SequenceID int
	Title      string
	Content    string
}

// TaskUpdate describes a status change for one task. Empty Result and
// Reflection leave the stored values untouched.
type TaskUpdate struct {
	SequenceID int
	Status     lifecycle.TaskStatus
	Result     string
	Reflection string
}

// Summary is a lightweight listing of a session with task counts.
type Summary struct {
	ID        string
	Objective string
	Status    lifecycle.SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	Total     int
	Completed int
	Failed    int
}

// TasksWithStatus returns the tasks currently in the given status, in order.
func (s *Session) TasksWithStatus(status lifecycle.TaskStatus) []Task {
	var out []Task
	for _, t := range s.Tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
