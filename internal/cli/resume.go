// resume.go implements the "todoagent resume" command.
package cli

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a session by id",
	Long: `Resume a stored session without retyping its objective. Tasks left
running by an interrupted or crashed run are retried; completed tasks
are never executed again. A finished session only prints its result.`,
	Args: sessionIDArgs(cobra.ExactArgs(1)),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveSessionID(cmd.Context(), a.store, args[0])
	if err != nil {
		return err
	}
	_, err = a.orch.ResumeSession(cmd.Context(), id)
	return err
}
