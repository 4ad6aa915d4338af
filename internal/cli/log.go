// log.go implements the "todoagent log" command printing a session's events.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/config"
	"github.com/berth-dev/todoagent/internal/log"
)

var logCmd = &cobra.Command{
	Use:   "log [session-id]",
	Short: "Show logged events, optionally for one session",
	Args:  sessionIDArgs(cobra.MaximumNArgs(1)),
	RunE:  runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	logger, err := log.NewLogger(config.Dir)
	if err != nil {
		return err
	}

	var events []log.LogEvent
	if len(args) == 1 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		id, err := resolveSessionID(cmd.Context(), store, args[0])
		store.Close()
		if err != nil {
			return err
		}
		events, err = logger.ForSession(id)
		if err != nil {
			return err
		}
	} else {
		events, err = logger.ReadAll()
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events logged.")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(out, "%s  %-20s %s  %s\n", e.Time.Local().Format(time.DateTime), e.Event, shortID(e.Session), describeEvent(e))
	}
	return nil
}

func describeEvent(e log.LogEvent) string {
	var parts []string
	if e.Task > 0 {
		parts = append(parts, fmt.Sprintf("#%d %s", e.Task, e.Title))
	}
	if e.Objective != "" {
		parts = append(parts, truncate(e.Objective, 50))
	}
	if e.Status != "" {
		parts = append(parts, "status="+e.Status)
	}
	if e.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d done", e.Completed, e.Total))
	}
	if len(e.Reverted) > 0 {
		parts = append(parts, fmt.Sprintf("reverted=%v", e.Reverted))
	}
	if e.DurationMs > 0 {
		parts = append(parts, (time.Duration(e.DurationMs) * time.Millisecond).String())
	}
	if e.Error != "" {
		parts = append(parts, "error="+truncate(e.Error, 60))
	}
	return strings.Join(parts, "  ")
}
