package execute

import (
	"context"
	"errors"
	"strings"
	"testing"

	taskcontext "github.com/berth-dev/todoagent/internal/context"
	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/llm"
	"github.com/berth-dev/todoagent/internal/tools"
)

type echoTool struct{ calls int }

func (e *echoTool) Definition() llm.ToolDef {
	return llm.ToolDef{Name: "echo", Description: "echo", Parameters: map[string]any{"type": "object"}}
}

func (e *echoTool) Call(_ context.Context, args map[string]any) (string, error) {
	e.calls++
	if v, _ := args["fail"].(bool); v {
		return "", errors.New("tool broke")
	}
	return "echoed", nil
}

const finalJSON = `{"task":"Answer","status":"completed","result":"42","reflection":"easy"}`

func TestAgentToolLoop(t *testing.T) {
	tool := &echoTool{}
	provider := llm.NewMockProvider(
		&llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "echo", Args: map[string]any{}}}},
		&llm.ChatResponse{Content: finalJSON},
	)
	agent := NewAgent(provider, tools.NewRegistry(tool), 1024, 0)

	prior := []taskcontext.Entry{{SequenceID: 1, Title: "Look", Content: "Look it up", Result: "found"}}
	out, err := agent.Execute(context.Background(), "Answer the question", prior)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	report, ok := out.(*Report)
	if !ok {
		t.Fatalf("got %T, want *Report", out)
	}
	if report.Status != lifecycle.Completed || report.Result != "42" || report.Reflection != "easy" {
		t.Errorf("got %+v", report)
	}
	if tool.calls != 1 {
		t.Errorf("got %d tool calls, want 1", tool.calls)
	}

	reqs := provider.Requests()
	if !strings.Contains(reqs[0].Messages[1].Content, "Step #1: Look") {
		t.Errorf("prior context missing from prompt: %q", reqs[0].Messages[1].Content)
	}
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	if last.Role != "tool" || last.Content != "echoed" || last.ToolCallID != "t1" {
		t.Errorf("tool result not fed back: %+v", last)
	}
}

func TestAgentToolErrorIsFedBack(t *testing.T) {
	provider := llm.NewMockProvider(
		&llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "echo", Args: map[string]any{"fail": true}}}},
		&llm.ChatResponse{Content: `{"task":"x","status":"failed","result":"","reflection":"tool broke"}`},
	)
	agent := NewAgent(provider, tools.NewRegistry(&echoTool{}), 1024, 0)

	out, err := agent.Execute(context.Background(), "task", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r, ok := out.(*Report); !ok || r.Status != lifecycle.Failed {
		t.Errorf("got %#v, want failed report", out)
	}
	last := provider.Requests()[1].Messages
	if got := last[len(last)-1].Content; got != "error: tool broke" {
		t.Errorf("got tool message %q", got)
	}
}

func TestAgentErrorReports(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		provider := llm.NewMockProvider()
		provider.SetError(errors.New("401 unauthorized"))
		out, err := NewAgent(provider, nil, 1024, 0).Execute(context.Background(), "task", nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		er, ok := out.(*ErrorReport)
		if !ok || !strings.HasPrefix(er.Message, "Error executing step: ") {
			t.Errorf("got %#v, want *ErrorReport", out)
		}
	})

	t.Run("unparseable answer", func(t *testing.T) {
		provider := llm.NewMockProvider(&llm.ChatResponse{Content: "The answer is 42."})
		out, err := NewAgent(provider, nil, 1024, 0).Execute(context.Background(), "task", nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if _, ok := out.(*ErrorReport); !ok {
			t.Errorf("got %#v, want *ErrorReport", out)
		}
	})

	t.Run("call limit", func(t *testing.T) {
		provider := llm.NewMockProvider()
		provider.ChatFunc = func(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "t", Name: "echo"}}}, nil
		}
		out, err := NewAgent(provider, tools.NewRegistry(&echoTool{}), 1024, 3).Execute(context.Background(), "task", nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		er, ok := out.(*ErrorReport)
		if !ok || !strings.Contains(er.Message, "limit of 3") {
			t.Errorf("got %#v, want call limit error report", out)
		}
		if provider.CallCount() != 3 {
			t.Errorf("got %d model calls, want 3", provider.CallCount())
		}
	})
}

func TestAgentReturnsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
		cancel()
		return nil, ctx.Err()
	}
	out, err := NewAgent(provider, nil, 1024, 0).Execute(ctx, "task", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if out != nil {
		t.Errorf("got outcome %#v, want nil", out)
	}
}
