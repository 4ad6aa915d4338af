// app.go wires configuration, credentials and the session store into an
// orchestrator for the commands that run sessions.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/berth-dev/todoagent/internal/config"
	"github.com/berth-dev/todoagent/internal/credentials"
	exec "github.com/berth-dev/todoagent/internal/execute"
	"github.com/berth-dev/todoagent/internal/llm"
	"github.com/berth-dev/todoagent/internal/log"
	"github.com/berth-dev/todoagent/internal/orchestrator"
	"github.com/berth-dev/todoagent/internal/plan"
	"github.com/berth-dev/todoagent/internal/session"
	"github.com/berth-dev/todoagent/internal/tools"
	"github.com/berth-dev/todoagent/internal/ui"
)

// loadConfig reads the project config and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	if planningModelFlag != "" {
		cfg.Planning.Model = planningModelFlag
		cfg.Planning.Provider = ""
	}
	if executionModelFlag != "" {
		cfg.Execution.Model = executionModelFlag
		cfg.Execution.Provider = ""
	}
	if dbFlag != "" {
		cfg.Store.Connection = dbFlag
	}
	return cfg, nil
}

// openStore opens the session database named by cfg, creating its
// directory when needed.
func openStore(cfg *config.Config) (*session.Store, error) {
	if cfg.Store.Connection == "" {
		return nil, fmt.Errorf("store.connection is required")
	}
	if dir := filepath.Dir(cfg.Store.Connection); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return session.NewStore(cfg.Store.Connection)
}

// app holds what a session-running command needs.
type app struct {
	store  *session.Store
	orch   *orchestrator.Orchestrator
	logger *log.Logger
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}

// newApp resolves configuration and credentials and builds the
// orchestrator. Missing credentials fail here, before any session work.
func newApp(out, errOut io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	creds, err := credentials.Load()
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	rt, err := config.Resolve(cfg, creds)
	if err != nil {
		return nil, err
	}

	planProvider, err := llm.NewProvider(rt.Planning)
	if err != nil {
		return nil, fmt.Errorf("planning provider: %w", err)
	}
	execProvider, err := llm.NewProvider(rt.Execution)
	if err != nil {
		return nil, fmt.Errorf("execution provider: %w", err)
	}

	logger, err := log.NewLogger(config.Dir)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	planner := plan.NewLLMPlanner(planProvider, rt.Planning.MaxTokens, rt.PlanningTimeout)
	agent := exec.NewAgent(execProvider, toolRegistry(rt), rt.Execution.MaxTokens, rt.MaxModelCalls)
	orch := orchestrator.New(store, planner, agent,
		orchestrator.Options{ExecutionTimeout: rt.ExecutionTimeout, LeaseTTL: rt.LeaseTTL},
		ui.NewPrinter(out),
		log.NewRecorder(logger, errOut),
	)

	return &app{store: store, orch: orch, logger: logger}, nil
}

// toolRegistry exposes the enabled tools to the execution agent.
func toolRegistry(rt *config.Runtime) *tools.Registry {
	var ts []tools.Tool
	if rt.SearchEnabled {
		ts = append(ts, &tools.TavilySearch{
			Client:     tools.NewTavilyClient(rt.SearchCredential, rt.TavilyURL),
			MaxResults: rt.SearchMaxResults,
			Topic:      rt.SearchTopic,
		})
	}
	if rt.ExtractEnabled {
		key := rt.ExtractCredential
		if key == "" {
			key = rt.SearchCredential
		}
		ts = append(ts, &tools.TavilyExtract{
			Client: tools.NewTavilyClient(key, rt.TavilyURL),
			Depth:  rt.ExtractDepth,
		})
	}
	return tools.NewRegistry(ts...)
}
