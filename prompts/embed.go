package prompts

import _ "embed"

//go:embed planner/system.md
var PlannerSystemPrompt string

//go:embed executor/system.md
var ExecutorSystemPrompt string

//go:embed executor/task.md.tmpl
var ExecutorTaskTemplate string
