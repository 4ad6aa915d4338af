package plan

import (
	"strings"
	"testing"
)

func TestParsePlan_ValidPlan(t *testing.T) {
	input := "```json\n" + `{
  "tasks": [
    {"id": 1, "title": "Find flights", "content": "Search for flights from Berlin to Lisbon in May", "status": "pending"},
    {"id": 2, "title": "Compare prices", "content": "Compare the three cheapest options"},
    {"id": 3, "title": "Recommend", "content": "Recommend the best flight"}
  ]
}` + "\n```"

	tasks, err := ParsePlan(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].SequenceID != 1 || tasks[0].Title != "Find flights" {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
	if tasks[2].Content != "Recommend the best flight" {
		t.Errorf("tasks[2].Content = %q", tasks[2].Content)
	}
}

func TestParsePlan_KeepsSparseIDs(t *testing.T) {
	tasks, err := ParsePlan(`{"tasks":[{"id":2,"title":"a","content":"a"},{"id":5,"title":"b","content":"b"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tasks[0].SequenceID != 2 || tasks[1].SequenceID != 5 {
		t.Errorf("ids renumbered: %+v", tasks)
	}
}

func TestParsePlan_Rejects(t *testing.T) {
	tests := map[string]struct {
		input string
		want  string
	}{
		"no json":      {"I cannot plan this.", "no JSON"},
		"empty":        {`{"tasks":[]}`, "no tasks"},
		"zero id":      {`{"tasks":[{"id":0,"title":"a","content":"a"}]}`, "positive"},
		"duplicate id": {`{"tasks":[{"id":1,"title":"a","content":"a"},{"id":1,"title":"b","content":"b"}]}`, "not greater"},
		"out of order": {`{"tasks":[{"id":2,"title":"a","content":"a"},{"id":1,"title":"b","content":"b"}]}`, "not greater"},
		"no title":     {`{"tasks":[{"id":1,"title":" ","content":"a"}]}`, "title"},
		"no content":   {`{"tasks":[{"id":1,"title":"a","content":""}]}`, "content"},
		"bad json":     {`{"tasks": [}`, "decoding"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %q, want it to mention %q", err, tt.want)
			}
		})
	}
}
