// Package ui prints session progress to the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/orchestrator"
	"github.com/berth-dev/todoagent/internal/session"
	"github.com/berth-dev/todoagent/internal/tui"
)

// Printer renders orchestrator progress as plain lines. Colors are used
// only when the output is a terminal.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	starts map[int]time.Time
	total  int
	done   int
}

// NewPrinter returns a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: out, color: color, starts: make(map[int]time.Time)}
}

func (p *Printer) style(s string, render func(...string) string) string {
	if !p.color {
		return s
	}
	return render(s)
}

func (p *Printer) icon(status lifecycle.TaskStatus) string {
	if !p.color {
		switch status {
		case lifecycle.Completed:
			return "[done]"
		case lifecycle.Failed:
			return "[failed]"
		case lifecycle.InProgress:
			return "[running]"
		default:
			return "[pending]"
		}
	}
	switch status {
	case lifecycle.Completed:
		return tui.TaskDone
	case lifecycle.Failed:
		return tui.TaskFailed
	case lifecycle.InProgress:
		return tui.TaskRunning
	default:
		return tui.TaskPending
	}
}

func (p *Printer) SessionStarted(sessionID, objective string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", p.style("Starting:", tui.TitleStyle.Render), objective)
	fmt.Fprintf(p.out, "%s\n", p.style("Session "+sessionID, tui.DimStyle.Render))
}

func (p *Printer) PlanCreated(sess *session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = len(sess.Tasks)
	fmt.Fprintf(p.out, "Plan with %d tasks:\n", len(sess.Tasks))
	for _, t := range sess.Tasks {
		fmt.Fprintf(p.out, "  %s #%d %s\n", p.icon(t.Status), t.SequenceID, t.Title)
	}
}

func (p *Printer) SessionResumed(sess *session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = len(sess.Tasks)
	p.done = len(sess.TasksWithStatus(lifecycle.Completed)) + len(sess.TasksWithStatus(lifecycle.Failed))
	fmt.Fprintf(p.out, "%s %s\n", p.style("Resuming:", tui.TitleStyle.Render), sess.Objective)
	fmt.Fprintf(p.out, "%s\n", p.style(fmt.Sprintf("Session %s (%d/%d tasks done)", sess.ID, p.done, p.total), tui.DimStyle.Render))
	for _, t := range sess.Tasks {
		fmt.Fprintf(p.out, "  %s #%d %s\n", p.icon(t.Status), t.SequenceID, t.Title)
	}
}

func (p *Printer) TaskStarted(_ string, task session.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts[task.SequenceID] = time.Now()
	fmt.Fprintf(p.out, "%s [%d/%d] #%d %s\n", p.icon(lifecycle.InProgress), p.done+1, p.total, task.SequenceID, task.Title)
}

func (p *Printer) TaskFinished(_ string, task session.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	elapsed := ""
	if start, ok := p.starts[task.SequenceID]; ok {
		elapsed = " " + p.style("("+time.Since(start).Round(time.Second).String()+")", tui.DimStyle.Render)
		delete(p.starts, task.SequenceID)
	}
	fmt.Fprintf(p.out, "%s #%d %s%s\n", p.icon(task.Status), task.SequenceID, task.Title, elapsed)
	if task.Reflection != "" {
		fmt.Fprintf(p.out, "    %s\n", p.style(task.Reflection, tui.DimStyle.Render))
	}
	if task.Status == lifecycle.Failed && task.Result != "" {
		fmt.Fprintf(p.out, "    %s\n", p.style(fmt.Sprintf("Task #%d failed: %s", task.SequenceID, task.Result), tui.ErrorStyle.Render))
	}
}

func (p *Printer) Interrupted(sessionID string, reverted []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s session %s can be resumed", p.style("Interrupted:", tui.WarningStyle.Render), sessionID)
	if len(reverted) > 0 {
		ids := make([]string, len(reverted))
		for i, id := range reverted {
			ids[i] = fmt.Sprintf("#%d", id)
		}
		fmt.Fprintf(p.out, " (%s back to pending)", strings.Join(ids, ", "))
	}
	fmt.Fprintln(p.out)
}

func (p *Printer) Finished(report *orchestrator.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
	if report.Outcome == orchestrator.OutcomeFailed {
		fmt.Fprintln(p.out, p.style(report.Summary(), tui.ErrorStyle.Render))
		return
	}
	fmt.Fprintln(p.out, p.style("Result:", tui.SuccessStyle.Render))
	fmt.Fprintln(p.out, report.Summary())
}
