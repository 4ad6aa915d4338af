// search.go implements the "todoagent search" command.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/index"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored task results",
	Long: `Full-text search over the titles, descriptions and results of every
stored task. Supports field queries such as "status:failed" or
"title:flights".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var searchLimitFlag int

func init() {
	searchCmd.Flags().IntVarP(&searchLimitFlag, "limit", "n", index.DefaultLimit, "Maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	idx, err := index.Build(cmd.Context(), store)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	defer idx.Close()

	hits, err := idx.Search(strings.Join(args, " "), searchLimitFlag)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(out, "%s #%d  %-11s %s\n", shortID(h.SessionID), h.Sequence, h.Status, h.Title)
		fmt.Fprintf(out, "    %s\n", truncate(h.Objective, 70))
		if h.Result != "" {
			fmt.Fprintf(out, "    %s\n", truncate(h.Result, 200))
		}
	}
	return nil
}
