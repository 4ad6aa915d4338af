// report.go implements the "todoagent report" command for session summaries.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/config"
	"github.com/berth-dev/todoagent/internal/log"
	"github.com/berth-dev/todoagent/internal/orchestrator"
	"github.com/berth-dev/todoagent/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Summarize a session",
	Long: `Display task counts, failures, run time and the final result of a
session. With --write the report is also saved to .todoagent/reports/.`,
	Args: sessionIDArgs(cobra.ExactArgs(1)),
	RunE: runReport,
}

var writeReportFlag bool

func init() {
	reportCmd.Flags().BoolVar(&writeReportFlag, "write", false, "Also write the report to .todoagent/reports/<id>.md")
}

func runReport(cmd *cobra.Command, args []string) error {
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

	var events []log.LogEvent
	if logger, err := log.NewLogger(config.Dir); err == nil {
		events, err = logger.ForSession(id)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to read log: %v\n", err)
		}
	}

	r := report.Generate(sess, events)
	fmt.Fprint(cmd.OutOrStdout(), report.FormatReport(r))

	if writeReportFlag {
		path, err := report.WriteReport(filepath.Join(config.Dir, "reports"), r)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
	}
	return nil
}
