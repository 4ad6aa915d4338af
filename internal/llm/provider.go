// Package llm wraps the model provider SDKs behind a single chat interface.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Message is one turn in a conversation.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"` // tool name on tool result messages
}

// ToolDef describes a tool the model may call.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ChatRequest is a single model call.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	Tools     []ToolDef `json:"tools,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	StopReason   string     `json:"stop_reason"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	Model        string     `json:"model"`
}

// Provider sends chat requests to a model.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string // anthropic, openai, google; inferred from Model when empty
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Retry     RetryConfig
}

// NewProvider builds the provider named by cfg, inferring it from the model
// name when not set.
func NewProvider(cfg Config) (Provider, error) {
	name := cfg.Provider
	if name == "" {
		name = InferProviderFromModel(cfg.Model)
	}
	switch name {
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	case "google":
		return NewGoogleProvider(cfg)
	case "":
		return nil, fmt.Errorf("cannot infer provider for model %q; set provider explicitly", cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// InferProviderFromModel returns the provider name for well-known model
// prefixes, or "" when unknown.
func InferProviderFromModel(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"),
		strings.HasPrefix(model, "chatgpt"):
		return "openai"
	case strings.HasPrefix(model, "gemini"), strings.HasPrefix(model, "gemma"):
		return "google"
	}
	return ""
}

func (c Config) validate(provider string) error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for %s", provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required for %s", provider)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens is required for %s", provider)
	}
	return nil
}
