// run.go implements "todoagent run", also reached by passing an objective
// to the root command.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run [objective]",
	Short: "Plan and execute an objective",
	Long: `Plan the objective into tasks and execute them in order. If the same
objective was run before, its session is resumed instead of planned
again. Without an objective you are prompted for one.

Unlike the bare 'todoagent <objective>' form, run never mistakes an
objective for a command.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	objective := strings.TrimSpace(strings.Join(args, " "))
	if objective == "" {
		var err error
		objective, err = tui.PromptObjective(cmd.InOrStdin(), cmd.OutOrStdout())
		if errors.Is(err, tui.ErrCancelled) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		if err != nil {
			return err
		}
	}

	a, err := newApp(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.orch.HandleUserInput(cmd.Context(), objective)
	return err
}
