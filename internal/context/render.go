package context

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/berth-dev/todoagent/prompts"
)

var taskTemplate = template.Must(template.New("executor_task").Parse(prompts.ExecutorTaskTemplate))

type renderData struct {
	Steps []Entry
	Task  string
}

// Render produces the user message for a task: the prior steps, if any,
// followed by the task to execute.
func Render(entries []Entry, task string) (string, error) {
	var buf bytes.Buffer
	if err := taskTemplate.Execute(&buf, renderData{Steps: entries, Task: task}); err != nil {
		return "", fmt.Errorf("rendering task prompt: %w", err)
	}
	return buf.String(), nil
}
