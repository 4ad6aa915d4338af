// Package plan decomposes an objective into an ordered list of tasks.
package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/berth-dev/todoagent/internal/llm"
	"github.com/berth-dev/todoagent/internal/session"
	"github.com/berth-dev/todoagent/prompts"
)

// Planner produces the ordered tasks for an objective.
type Planner interface {
	CreatePlan(ctx context.Context, objective string) ([]session.NewTask, error)
}

// PlanningError reports that no usable plan could be produced. Nothing is
// persisted when planning fails.
type PlanningError struct {
	Objective string
	Err       error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// LLMPlanner asks a model for a JSON task list.
type LLMPlanner struct {
	Provider  llm.Provider
	MaxTokens int
	Timeout   time.Duration
}

// NewLLMPlanner returns a planner backed by provider.
func NewLLMPlanner(provider llm.Provider, maxTokens int, timeout time.Duration) *LLMPlanner {
	return &LLMPlanner{Provider: provider, MaxTokens: maxTokens, Timeout: timeout}
}

// CreatePlan implements Planner. Every failure is a *PlanningError.
func (p *LLMPlanner) CreatePlan(ctx context.Context, objective string) ([]session.NewTask, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, &PlanningError{Objective: objective, Err: fmt.Errorf("objective is empty")}
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	resp, err := p.Provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: prompts.PlannerSystemPrompt},
			{Role: "user", Content: objective},
		},
		MaxTokens: p.MaxTokens,
	})
	if err != nil {
		return nil, &PlanningError{Objective: objective, Err: err}
	}

	tasks, err := ParsePlan(resp.Content)
	if err != nil {
		return nil, &PlanningError{Objective: objective, Err: err}
	}
	return tasks, nil
}
