// Package tools holds the tools the execution agent may call.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/berth-dev/todoagent/internal/llm"
)

// Tool is a callable capability exposed to the model.
type Tool interface {
	Definition() llm.ToolDef
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Registry maps tool names to tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Definition().Name] = t
	}
	return r
}

// Definitions returns the tool definitions sorted by name.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Call invokes the named tool.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.Call(ctx, args)
}
