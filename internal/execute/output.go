// output.go parses the agent's final structured answer.
package execute

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/llm"
)

type rawReport struct {
	Task       string `json:"task"`
	Status     string `json:"status"`
	Result     string `json:"result"`
	Reflection string `json:"reflection"`
}

// ParseReport parses the agent's final JSON answer into a Report.
func ParseReport(output string) (*Report, error) {
	if strings.TrimSpace(output) == "" {
		return nil, fmt.Errorf("empty agent output")
	}
	raw, ok := llm.ExtractJSON(output)
	if !ok {
		return nil, fmt.Errorf("no JSON object in agent output")
	}

	var r rawReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("parsing agent output: %w", err)
	}

	status := lifecycle.TaskStatus(strings.ToLower(strings.TrimSpace(r.Status)))
	if status != lifecycle.Completed && status != lifecycle.Failed {
		return nil, fmt.Errorf("unexpected task status %q (expected \"completed\" or \"failed\")", r.Status)
	}

	return &Report{
		Task:       r.Task,
		Status:     status,
		Result:     r.Result,
		Reflection: r.Reflection,
	}, nil
}
