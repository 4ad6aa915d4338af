// init.go implements the "todoagent init" command.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/todoagent/internal/config"
	"github.com/berth-dev/todoagent/internal/tui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration to .todoagent/config.yaml",
	RunE:  runInit,
}

var guidedFlag bool

func init() {
	initCmd.Flags().BoolVar(&guidedFlag, "guided", false, "Interactive prompts for configuration overrides")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	configPath := filepath.Join(dir, config.Dir, "config.yaml")
	if _, statErr := os.Stat(configPath); statErr == nil {
		fmt.Fprintln(out, "Warning: .todoagent/config.yaml already exists.")
		answer, _ := tui.ReadLine(in, out, "Overwrite? [y/N]: ")
		answer = strings.ToLower(answer)
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if guidedFlag {
		if v, err := tui.ReadLine(in, out, fmt.Sprintf("Planning model [%s]: ", cfg.Planning.Model)); err == nil {
			cfg.Planning.Model = v
		}
		if v, err := tui.ReadLine(in, out, fmt.Sprintf("Execution model [%s]: ", cfg.Execution.Model)); err == nil {
			cfg.Execution.Model = v
		}
		if v, err := tui.ReadLine(in, out, "Enable web search tools? [Y/n]: "); err == nil && strings.HasPrefix(strings.ToLower(v), "n") {
			cfg.Tools.Search.Enabled = false
			cfg.Tools.Extract.Enabled = false
		}
	}

	if err := config.WriteConfig(dir, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := ensureGitignore(dir); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to set up .gitignore: %v\n", err)
	}

	fmt.Fprintln(out, "Configuration written to .todoagent/config.yaml")
	fmt.Fprintln(out, "API keys are read from credentials.toml or the environment (OPENAI_API_KEY, TAVILY_API_KEY, ...).")
	fmt.Fprintln(out, "Ready to run: todoagent \"your objective\"")
	return nil
}

// ensureGitignore adds the state directory to an existing .gitignore.
func ensureGitignore(dir string) error {
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	entry := config.Dir + "/"
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry || strings.TrimSpace(line) == config.Dir {
			return nil
		}
	}
	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content+entry+"\n"), 0644)
}
