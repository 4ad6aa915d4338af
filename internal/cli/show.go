// show.go implements the "todoagent show" command printing one session.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/orchestrator"
)

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the tasks and results of a session",
	Args:  sessionIDArgs(cobra.ExactArgs(1)),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolveSessionID(cmd.Context(), store, args[0])
	if err != nil {
		return err
	}
	sess, err := store.FindSession(cmd.Context(), id)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("%w: %s", orchestrator.ErrSessionNotFound, id)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:   %s\n", sess.ID)
	fmt.Fprintf(out, "Objective: %s\n", sess.Objective)
	fmt.Fprintf(out, "Status:    %s\n", sess.Status)
	fmt.Fprintf(out, "Created:   %s\n", sess.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Updated:   %s\n", sess.UpdatedAt.Local().Format(time.DateTime))
	fmt.Fprintln(out)

	for _, t := range sess.Tasks {
		fmt.Fprintf(out, "#%d  %-11s  %s\n", t.SequenceID, t.Status, t.Title)
		fmt.Fprintf(out, "    %s\n", t.Content)
		if t.StartedAt != nil {
			line := "    started " + t.StartedAt.Local().Format(time.DateTime)
			if t.CompletedAt != nil {
				line += ", took " + t.CompletedAt.Sub(*t.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintln(out, line)
		}
		if t.Result != "" {
			fmt.Fprintf(out, "    Result: %s\n", t.Result)
		}
		if t.Reflection != "" {
			fmt.Fprintf(out, "    Reflection: %s\n", t.Reflection)
		}
		fmt.Fprintln(out)
	}
	return nil
}
