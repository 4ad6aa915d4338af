// Package cleanup implements pruning of finished sessions.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/session"
)

// Store lists and deletes sessions.
type Store interface {
	ListSessions(ctx context.Context, limit int) ([]session.Summary, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
}

// PruneByAge removes completed sessions last updated more than maxAgeDays
// ago. Active sessions are never pruned since they can still be resumed.
// If dryRun is true, nothing is deleted. Returns the pruned sessions.
func PruneByAge(ctx context.Context, store Store, maxAgeDays int, dryRun bool) ([]session.Summary, error) {
	sessions, err := store.ListSessions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var stale []session.Summary
	for _, s := range sessions {
		if s.Status == lifecycle.SessionComplete && s.UpdatedAt.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	return remove(ctx, store, stale, dryRun)
}

// PruneKeepRecent removes all completed sessions except the keep most
// recently updated ones. If dryRun is true, nothing is deleted.
func PruneKeepRecent(ctx context.Context, store Store, keep int, dryRun bool) ([]session.Summary, error) {
	sessions, err := store.ListSessions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	// ListSessions returns the most recent first.
	var completed []session.Summary
	for _, s := range sessions {
		if s.Status == lifecycle.SessionComplete {
			completed = append(completed, s)
		}
	}
	if len(completed) <= keep {
		return nil, nil
	}
	return remove(ctx, store, completed[keep:], dryRun)
}

// PruneIDs removes the named sessions regardless of status. Unknown ids
// are reported in missing.
func PruneIDs(ctx context.Context, store Store, ids []string, dryRun bool) (pruned, missing []string, err error) {
	known := make(map[string]bool)
	if dryRun {
		sessions, err := store.ListSessions(ctx, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("listing sessions: %w", err)
		}
		for _, s := range sessions {
			known[s.ID] = true
		}
	}

	for _, id := range ids {
		if dryRun {
			if known[id] {
				pruned = append(pruned, id)
			} else {
				missing = append(missing, id)
			}
			continue
		}
		ok, err := store.DeleteSession(ctx, id)
		if err != nil {
			return pruned, missing, fmt.Errorf("removing %s: %w", id, err)
		}
		if ok {
			pruned = append(pruned, id)
		} else {
			missing = append(missing, id)
		}
	}
	return pruned, missing, nil
}

func remove(ctx context.Context, store Store, sessions []session.Summary, dryRun bool) ([]session.Summary, error) {
	var pruned []session.Summary
	for _, s := range sessions {
		if !dryRun {
			if _, err := store.DeleteSession(ctx, s.ID); err != nil {
				return pruned, fmt.Errorf("removing %s: %w", s.ID, err)
			}
		}
		pruned = append(pruned, s)
	}
	return pruned, nil
}
