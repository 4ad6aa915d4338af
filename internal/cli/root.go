// Package cli defines Cobra command definitions for the todoagent CLI.
// This file contains the root command, global flags and the process exit code.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/orchestrator"
)

var (
	planningModelFlag  string
	executionModelFlag string
	dbFlag             string
	version            = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "todoagent [objective]",
	Short: "Plan an objective into tasks and work through them",
	Long: `todoagent turns an objective into an ordered list of tasks, executes
them one at a time with an LLM agent that can search the web, and keeps
progress in a local database. Running the same objective again, or
'todoagent resume <id>', continues where the last run stopped.

An objective whose first word is a command name (show, report, clean,
...) is taken as that command. 'todoagent run "<objective>"' always
treats its arguments as an objective.`,
	Example: `  todoagent run "show me flights from Lisbon to Porto"
  todoagent plan a weekend in Lisbon
  todoagent resume 3f9a1c2e`,
	Version:       version,
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runRun,
}

// Execute runs the root command. Called from main.
func Execute() {
	os.Exit(execute())
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitCode(err)
	}
	return 0
}

// exitCode prints err and maps it to the process exit status. An
// interrupted run exits 130 like a shell does on SIGINT.
func exitCode(err error) int {
	if errors.Is(err, orchestrator.ErrInterrupted) {
		fmt.Fprintln(os.Stderr, "Interrupted. Run the same objective again or use 'todoagent resume' to continue.")
		return 130
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&planningModelFlag, "planning-model", "", "Model used to plan objectives (overrides config)")
	rootCmd.PersistentFlags().StringVar(&executionModelFlag, "execution-model", "", "Model used to execute tasks (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Path to the session database (overrides config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(cleanCmd)
}
