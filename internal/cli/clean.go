// clean.go implements the "todoagent clean" command for removing sessions.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/cleanup"
	"github.com/berth-dev/todoagent/internal/config"
	"github.com/berth-dev/todoagent/internal/log"
	"github.com/berth-dev/todoagent/internal/orchestrator"
	"github.com/berth-dev/todoagent/internal/session"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [session-id...]",
	Short: "Remove old sessions",
	Long: `Remove sessions and their tasks from the database.

With session ids, removes exactly those sessions. Each id needs at least
8 characters and must name an existing session; if any does not, nothing
is removed. Otherwise removes
completed sessions older than --max-age-days (default: the configured
cleanup.max_age_days, 30). Use --keep to keep only the N most recent
completed sessions instead. Active sessions are only removed by id.
Use --dry-run to preview what would be removed.`,
	Args: sessionIDArgs(cobra.ArbitraryArgs),
	RunE: runClean,
}

// minCleanPrefix is the shortest id prefix clean accepts.
const minCleanPrefix = 8

var (
	keepFlag       int
	maxAgeDaysFlag int
	dryRunFlag     bool
)

func init() {
	cleanCmd.Flags().IntVar(&keepFlag, "keep", 0, "Keep only the last N completed sessions (0 = use age-based cleanup)")
	cleanCmd.Flags().IntVar(&maxAgeDaysFlag, "max-age-days", 0, "Remove completed sessions older than N days (0 = use config)")
	cleanCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview what would be removed without deleting")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	}

	var pruned []string
	if len(args) > 0 {
		ids := make([]string, 0, len(args))
		for _, a := range args {
			if len(strings.TrimSpace(a)) < minCleanPrefix {
				return fmt.Errorf("session id %q is too short; clean needs at least %d characters", a, minCleanPrefix)
			}
			id, err := resolveSessionID(ctx, store, a)
			if err != nil {
				return err
			}
			sess, err := store.FindSession(ctx, id)
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("%w: %s (nothing removed)", orchestrator.ErrSessionNotFound, a)
			}
			ids = append(ids, id)
		}
		var missing []string
		pruned, missing, err = cleanup.PruneIDs(ctx, store, ids, dryRunFlag)
		for _, id := range missing {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: session %s not found\n", id)
		}
	} else {
		var sessions []session.Summary
		if keepFlag > 0 {
			sessions, err = cleanup.PruneKeepRecent(ctx, store, keepFlag, dryRunFlag)
		} else {
			maxAge := maxAgeDaysFlag
			if maxAge <= 0 {
				maxAge = cfg.Cleanup.MaxAgeDays
			}
			if maxAge <= 0 {
				maxAge = 30
			}
			sessions, err = cleanup.PruneByAge(ctx, store, maxAge, dryRunFlag)
		}
		for _, s := range sessions {
			pruned = append(pruned, s.ID)
		}
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if len(pruned) == 0 {
		fmt.Fprintln(out, "No sessions to clean up.")
		return nil
	}

	logger, logErr := log.NewLogger(config.Dir)
	for _, id := range pruned {
		fmt.Fprintf(out, "  %s %s\n", verb, shortID(id))
		if dryRunFlag || logErr != nil {
			continue
		}
		if err := logger.Append(log.LogEvent{Event: log.EventSessionDeleted, Session: id}); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to log deletion: %v\n", err)
		}
	}
	fmt.Fprintf(out, "%s %d session(s).\n", verb, len(pruned))

	return nil
}
