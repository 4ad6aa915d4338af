// Package testutil provides test helpers shared across packages.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/session"
)

// NewStore opens a store in a temporary directory that is closed when the
// test finishes. It returns the store and its database path.
func NewStore(t *testing.T) (*session.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "todoagent.db")
	store, err := session.NewStore(path)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

// Tasks builds NewTasks numbered from 1 with the given titles. Each task's
// content is derived from its title.
func Tasks(titles ...string) []session.NewTask {
	out := make([]session.NewTask, len(titles))
	for i, title := range titles {
		out[i] = session.NewTask{SequenceID: i + 1, Title: title, Content: "Do: " + title}
	}
	return out
}

// SeedSession stores a session for objective under its fingerprint id and
// returns the id.
func SeedSession(t *testing.T, store *session.Store, objective string, tasks []session.NewTask) string {
	t.Helper()
	id := session.Fingerprint(objective)
	if _, err := store.CreateSession(context.Background(), id, objective, tasks); err != nil {
		t.Fatalf("creating session %q: %v", objective, err)
	}
	return id
}

// Complete moves a pending task through in_progress to completed with result.
func Complete(t *testing.T, store *session.Store, sessionID string, seq int, result string) {
	t.Helper()
	finish(t, store, sessionID, seq, lifecycle.Completed, result, "")
}

// Fail moves a pending task through in_progress to failed.
func Fail(t *testing.T, store *session.Store, sessionID string, seq int, result, reflection string) {
	t.Helper()
	finish(t, store, sessionID, seq, lifecycle.Failed, result, reflection)
}

func finish(t *testing.T, store *session.Store, sessionID string, seq int, status lifecycle.TaskStatus, result, reflection string) {
	t.Helper()
	ctx := context.Background()
	if err := store.UpdateTask(ctx, sessionID, session.TaskUpdate{SequenceID: seq, Status: lifecycle.InProgress}); err != nil {
		t.Fatalf("starting task %d: %v", seq, err)
	}
	if err := store.UpdateTask(ctx, sessionID, session.TaskUpdate{
		SequenceID: seq,
		Status:     status,
		Result:     result,
		Reflection: reflection,
	}); err != nil {
		t.Fatalf("finishing task %d: %v", seq, err)
	}
}
