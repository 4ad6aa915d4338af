// parser.go turns a planner reply into an ordered task list.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/berth-dev/todoagent/internal/llm"
	"github.com/berth-dev/todoagent/internal/session"
)

type rawPlan struct {
	Tasks []rawTask `json:"tasks"`
}

type rawTask struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ParsePlan parses the planner's JSON reply. Sequence ids must be positive
// and strictly increasing in list order, so the list order is the
// execution order.
func ParsePlan(output string) ([]session.NewTask, error) {
	raw, ok := llm.ExtractJSON(output)
	if !ok {
		return nil, fmt.Errorf("no JSON object in planner output")
	}

	var p rawPlan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if len(p.Tasks) == 0 {
		return nil, fmt.Errorf("plan has no tasks")
	}

	tasks := make([]session.NewTask, 0, len(p.Tasks))
	prev := 0
	for i, t := range p.Tasks {
		title := strings.TrimSpace(t.Title)
		content := strings.TrimSpace(t.Content)
		switch {
		case t.ID <= 0:
			return nil, fmt.Errorf("task %d: id must be positive, got %d", i+1, t.ID)
		case t.ID <= prev:
			return nil, fmt.Errorf("task %d: id %d is not greater than previous id %d", i+1, t.ID, prev)
		case title == "":
			return nil, fmt.Errorf("task %d: title is empty", t.ID)
		case content == "":
			return nil, fmt.Errorf("task %d: content is empty", t.ID)
		}
		prev = t.ID
		tasks = append(tasks, session.NewTask{SequenceID: t.ID, Title: title, Content: content})
	}
	return tasks, nil
}
