// status.go implements the "todoagent status" command listing sessions.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List recent sessions and their progress",
	RunE:  runStatus,
}

var statusLimitFlag int

func init() {
	statusCmd.Flags().IntVarP(&statusLimitFlag, "limit", "n", 20, "Number of sessions to show (0 = all)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions(cmd.Context(), statusLimitFlag)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found. Start one with: todoagent \"your objective\"")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tUPDATED\tOBJECTIVE")
	for _, s := range sessions {
		progress := fmt.Sprintf("%d/%d", s.Completed, s.Total)
		if s.Failed > 0 {
			progress += fmt.Sprintf(" (%d failed)", s.Failed)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(s.ID), s.Status, progress, s.UpdatedAt.Local().Format("2006-01-02 15:04"), truncate(s.Objective, 60))
	}
	return w.Flush()
}

// errNotSessionID is returned for an argument that cannot be a session id,
// usually an objective whose first word happens to be a command name.
var errNotSessionID = errors.New("not a session id")

// resolveSessionID expands a unique id prefix to the full session id.
func resolveSessionID(ctx context.Context, store interface {
	ListSessions(ctx context.Context, limit int) ([]session.Summary, error)
}, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("session id is empty")
	}
	if !isHexID(prefix) {
		return "", fmt.Errorf("%q: %w; to run an objective use: todoagent run \"<objective>\"", prefix, errNotSessionID)
	}
	sessions, err := store.ListSessions(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("listing sessions: %w", err)
	}
	var matches []string
	for _, s := range sessions {
		if s.ID == prefix {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		// Let the caller report an unknown id in its own terms.
		return prefix, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("session id %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

// sessionIDArgs checks that every argument could be a session id before
// applying count, so a misrouted objective gets a pointer to "run".
func sessionIDArgs(count cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		for _, a := range args {
			if !isHexID(strings.ToLower(strings.TrimSpace(a))) {
				return fmt.Errorf("%q: %w; to run an objective use: todoagent run \"<objective>\"", a, errNotSessionID)
			}
		}
		return count(cmd, args)
	}
}

// isHexID reports whether s could be a prefix of a sha256 hex session id.
func isHexID(s string) bool {
	if len(s) > 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
