// Package context assembles the record of prior work handed to the
// execution agent before each task.
package context

import (
	"context"
	"fmt"

	"github.com/berth-dev/todoagent/internal/session"
)

// Entry is one completed task as seen by later tasks.
type Entry struct {
	SequenceID int
	Title      string
	Content    string
	Result     string
}

// CompletedLister is the slice of the store the builder needs.
type CompletedLister interface {
	ListCompleted(ctx context.Context, sessionID string) ([]session.Task, error)
}

// Build returns the session's completed tasks in execution order. It reads
// the store every time so results written by the previous task are visible.
func Build(ctx context.Context, store CompletedLister, sessionID string) ([]Entry, error) {
	tasks, err := store.ListCompleted(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing completed tasks: %w", err)
	}
	entries := make([]Entry, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, Entry{
			SequenceID: t.SequenceID,
			Title:      t.Title,
			Content:    t.Content,
			Result:     t.Result,
		})
	}
	return entries, nil
}
