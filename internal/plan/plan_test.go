package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/berth-dev/todoagent/internal/llm"
)

func TestLLMPlannerCreatePlan(t *testing.T) {
	provider := llm.NewMockProvider(&llm.ChatResponse{
		Content: `{"tasks":[{"id":1,"title":"Look up","content":"Look up the answer"}]}`,
	})
	p := NewLLMPlanner(provider, 1024, 0)

	tasks, err := p.CreatePlan(context.Background(), "What is 2+2?")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Look up" {
		t.Errorf("got %+v", tasks)
	}

	req := provider.Requests()[0]
	if req.Messages[0].Role != "system" || req.Messages[1].Content != "What is 2+2?" {
		t.Errorf("unexpected request: %+v", req.Messages)
	}
}

func TestLLMPlannerWrapsFailures(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetError(errors.New("connection refused"))

	_, err := NewLLMPlanner(provider, 1024, 0).CreatePlan(context.Background(), "objective")
	var pe *PlanningError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *PlanningError", err)
	}

	bad := llm.NewMockProvider(&llm.ChatResponse{Content: `{"tasks":[]}`})
	_, err = NewLLMPlanner(bad, 1024, 0).CreatePlan(context.Background(), "objective")
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *PlanningError for empty plan", err)
	}

	_, err = NewLLMPlanner(bad, 1024, 0).CreatePlan(context.Background(), "   ")
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *PlanningError for empty objective", err)
	}
}
