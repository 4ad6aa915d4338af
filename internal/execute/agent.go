package execute

import (
	"context"
	"fmt"

	taskcontext "github.com/berth-dev/todoagent/internal/context"
	"github.com/berth-dev/todoagent/internal/llm"
	"github.com/berth-dev/todoagent/internal/tools"
	"github.com/berth-dev/todoagent/prompts"
)

// DefaultMaxModelCalls bounds the model calls spent on one task.
const DefaultMaxModelCalls = 15

// Agent executes tasks with a tool-calling loop over a model provider.
type Agent struct {
	Provider      llm.Provider
	Tools         *tools.Registry
	MaxTokens     int
	MaxModelCalls int
}

// NewAgent returns an agent using provider and the given tools.
func NewAgent(provider llm.Provider, registry *tools.Registry, maxTokens, maxModelCalls int) *Agent {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if maxModelCalls <= 0 {
		maxModelCalls = DefaultMaxModelCalls
	}
	return &Agent{Provider: provider, Tools: registry, MaxTokens: maxTokens, MaxModelCalls: maxModelCalls}
}

// Execute implements Executor. Agent-side problems (provider errors, running
// out of model calls, an unreadable final answer) come back as an
// *ErrorReport; only cancellation of ctx is returned as an error.
func (a *Agent) Execute(ctx context.Context, task string, prior []taskcontext.Entry) (Outcome, error) {
	input, err := taskcontext.Render(prior, task)
	if err != nil {
		return nil, err
	}

	messages := []llm.Message{
		{Role: "system", Content: prompts.ExecutorSystemPrompt},
		{Role: "user", Content: input},
	}
	defs := a.Tools.Definitions()

	for call := 0; call < a.MaxModelCalls; call++ {
		resp, err := a.Provider.Chat(ctx, llm.ChatRequest{
			Messages:  messages,
			Tools:     defs,
			MaxTokens: a.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return errorReport(err), nil
		}

		if len(resp.ToolCalls) == 0 {
			report, err := ParseReport(resp.Content)
			if err != nil {
				return errorReport(err), nil
			}
			return report, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			out, err := a.Tools.Call(ctx, tc.Name, tc.Args)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				out = "error: " + err.Error()
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    out,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	return errorReport(fmt.Errorf("model call limit of %d reached", a.MaxModelCalls)), nil
}

func errorReport(err error) *ErrorReport {
	return &ErrorReport{Message: "Error executing step: " + err.Error()}
}
