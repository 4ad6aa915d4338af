// Package config handles reading and writing .todoagent/config.yaml and
// resolving it, with credentials, into the settings a run uses.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/berth-dev/todoagent/internal/llm"
)

// Config is the top-level structure for .todoagent/config.yaml.
type Config struct {
	Version   int             `yaml:"version"`
	Planning  ModelConfig     `yaml:"planning"`
	Execution ExecutionConfig `yaml:"execution"`
	Store     StoreConfig     `yaml:"store"`
	Tools     ToolsConfig     `yaml:"tools"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
}

// ModelConfig selects the model for one role.
type ModelConfig struct {
	Model          string `yaml:"model"`
	Provider       string `yaml:"provider,omitempty"` // inferred from model when empty
	BaseURL        string `yaml:"base_url,omitempty"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // 0 disables the timeout
}

// ExecutionConfig controls task execution.
type ExecutionConfig struct {
	ModelConfig   `yaml:",inline"`
	MaxModelCalls int `yaml:"max_model_calls"`
}

// StoreConfig locates the session database.
type StoreConfig struct {
	Connection      string `yaml:"connection"`
	LeaseTTLSeconds int    `yaml:"lease_ttl_seconds"`
}

// ToolsConfig configures the tools available to the execution agent.
type ToolsConfig struct {
	TavilyURL string        `yaml:"tavily_url,omitempty"`
	Search    SearchConfig  `yaml:"search"`
	Extract   ExtractConfig `yaml:"extract"`
}

// SearchConfig configures web search.
type SearchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	MaxResults int    `yaml:"max_results"`
	Topic      string `yaml:"topic"`
}

// ExtractConfig configures page extraction.
type ExtractConfig struct {
	Enabled bool   `yaml:"enabled"`
	Depth   string `yaml:"depth"`
}

// CleanupConfig controls `todoagent clean`.
type CleanupConfig struct {
	MaxAgeDays int `yaml:"max_age_days"`
}

const (
	// Dir is the per-project state directory.
	Dir        = ".todoagent"
	configFile = "config.yaml"
)

// ReadConfig reads .todoagent/config.yaml from the given project directory.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, Dir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Load reads the project config, falling back to defaults when there is
// none, and applies environment overrides.
func Load(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if errors.Is(err, os.ErrNotExist) {
		cfg = DefaultConfig()
	} else if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// WriteConfig writes cfg to .todoagent/config.yaml in the given project directory.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, Dir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dirPath, configFile), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Planning: ModelConfig{
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Execution: ExecutionConfig{
			ModelConfig: ModelConfig{
				Model:     "gpt-4o",
				MaxTokens: 4096,
			},
			MaxModelCalls: 15,
		},
		Store: StoreConfig{
			Connection:      filepath.Join(Dir, "todoagent.db"),
			LeaseTTLSeconds: 1800,
		},
		Tools: ToolsConfig{
			Search:  SearchConfig{Enabled: true, MaxResults: 3, Topic: "general"},
			Extract: ExtractConfig{Enabled: true, Depth: "basic"},
		},
		Cleanup: CleanupConfig{MaxAgeDays: 30},
	}
}

// Environment variables that override the config file.
const (
	EnvPlanningModel  = "TODOAGENT_PLANNING_MODEL"
	EnvExecutionModel = "TODOAGENT_EXECUTION_MODEL"
	EnvStore          = "TODOAGENT_STORE"
)

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvPlanningModel); v != "" {
		c.Planning.Model = v
	}
	if v := getenv(EnvExecutionModel); v != "" {
		c.Execution.Model = v
	}
	if v := getenv(EnvStore); v != "" {
		c.Store.Connection = v
	}
}

// KeySource looks up API keys by provider name.
type KeySource interface {
	GetAPIKey(provider string) string
}

// Runtime is the fully resolved configuration for one run.
type Runtime struct {
	Planning          llm.Config
	PlanningTimeout   time.Duration
	Execution         llm.Config
	ExecutionTimeout  time.Duration
	MaxModelCalls     int
	StoreConnection   string
	LeaseTTL          time.Duration
	TavilyURL         string
	SearchEnabled     bool
	SearchCredential  string
	SearchMaxResults  int
	SearchTopic       string
	ExtractEnabled    bool
	ExtractCredential string
	ExtractDepth      string
}

// Resolve validates cfg and attaches credentials. Every missing setting is
// reported at once, before any session work starts.
func Resolve(cfg *Config, keys KeySource) (*Runtime, error) {
	var errs []error

	planning, err := resolveModel("planning", cfg.Planning, keys)
	errs = append(errs, err)
	execution, err := resolveModel("execution", cfg.Execution.ModelConfig, keys)
	errs = append(errs, err)

	if cfg.Store.Connection == "" {
		errs = append(errs, errors.New("store.connection is required"))
	}

	rt := &Runtime{
		Planning:         planning,
		PlanningTimeout:  seconds(cfg.Planning.TimeoutSeconds),
		Execution:        execution,
		ExecutionTimeout: seconds(cfg.Execution.TimeoutSeconds),
		MaxModelCalls:    cfg.Execution.MaxModelCalls,
		StoreConnection:  cfg.Store.Connection,
		LeaseTTL:         seconds(cfg.Store.LeaseTTLSeconds),
		TavilyURL:        cfg.Tools.TavilyURL,
		SearchEnabled:    cfg.Tools.Search.Enabled,
		SearchMaxResults: cfg.Tools.Search.MaxResults,
		SearchTopic:      cfg.Tools.Search.Topic,
		ExtractEnabled:   cfg.Tools.Extract.Enabled,
		ExtractDepth:     cfg.Tools.Extract.Depth,
	}

	if rt.SearchEnabled {
		rt.SearchCredential = keys.GetAPIKey("tavily")
		if rt.SearchCredential == "" {
			errs = append(errs, errors.New("search credential missing: set [tavily] api_key or TAVILY_API_KEY"))
		}
	}
	if rt.ExtractEnabled {
		rt.ExtractCredential = keys.GetAPIKey("tavily")
		if rt.ExtractCredential == "" && !rt.SearchEnabled {
			errs = append(errs, errors.New("extract credential missing: set [tavily] api_key or TAVILY_API_KEY"))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return rt, nil
}

func resolveModel(role string, mc ModelConfig, keys KeySource) (llm.Config, error) {
	out := llm.Config{
		Provider:  mc.Provider,
		Model:     mc.Model,
		BaseURL:   mc.BaseURL,
		MaxTokens: mc.MaxTokens,
	}
	if mc.Model == "" {
		return out, fmt.Errorf("%s.model is required", role)
	}
	if out.Provider == "" {
		out.Provider = llm.InferProviderFromModel(mc.Model)
	}
	if out.Provider == "" {
		return out, fmt.Errorf("%s.provider is required for model %q", role, mc.Model)
	}
	if out.MaxTokens <= 0 {
		return out, fmt.Errorf("%s.max_tokens must be positive", role)
	}
	out.APIKey = keys.GetAPIKey(out.Provider)
	if out.APIKey == "" {
		return out, fmt.Errorf("%s credential missing for provider %s", role, out.Provider)
	}
	return out, nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
