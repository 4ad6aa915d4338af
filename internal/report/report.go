// Package report generates run summaries for a session.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/log"
	"github.com/berth-dev/todoagent/internal/session"
)

// Report holds the aggregated statistics for one session.
type Report struct {
	SessionID string
	Objective string
	Status    lifecycle.SessionStatus
	Total     int
	Completed int
	Failed    int
	Pending   int
	Runs      int
	Interrupt int
	Duration  time.Duration
	Failures  []session.Task
	Final     string
}

// Generate builds a Report from the stored session and its logged events.
// Events are optional; without them Duration and Runs stay zero.
func Generate(sess *session.Session, events []log.LogEvent) *Report {
	r := &Report{
		SessionID: sess.ID,
		Objective: sess.Objective,
		Status:    sess.Status,
		Total:     len(sess.Tasks),
	}

	for _, t := range sess.Tasks {
		switch t.Status {
		case lifecycle.Completed:
			r.Completed++
			if t.Result != "" {
				r.Final = t.Result
			}
		case lifecycle.Failed:
			r.Failed++
			r.Failures = append(r.Failures, t)
		default:
			r.Pending++
		}
	}
	if r.Failed > 0 {
		r.Final = ""
	}

	runs := make(map[string]bool)
	for _, e := range events {
		if e.Session != sess.ID {
			continue
		}
		if e.Run != "" {
			runs[e.Run] = true
		}
		if e.Event == log.EventSessionInterrupted {
			r.Interrupt++
		}
	}
	r.Runs = len(runs)
	r.Duration = computeDuration(sess.ID, events)

	return r
}

// FormatReport produces a terminal-friendly, human-readable summary string.
func FormatReport(r *Report) string {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString("  Session Report\n")
	b.WriteString("========================================\n")
	b.WriteString("\n")

	fmt.Fprintf(&b, "Session:     %s\n", r.SessionID)
	fmt.Fprintf(&b, "Objective:   %s\n", r.Objective)
	fmt.Fprintf(&b, "Status:      %s\n", r.Status)
	b.WriteString("\n")

	fmt.Fprintf(&b, "Tasks:       %d total\n", r.Total)
	fmt.Fprintf(&b, "  Completed: %d\n", r.Completed)
	fmt.Fprintf(&b, "  Failed:    %d\n", r.Failed)
	fmt.Fprintf(&b, "  Pending:   %d\n", r.Pending)
	b.WriteString("\n")

	if len(r.Failures) > 0 {
		b.WriteString("Failures:\n")
		for _, t := range r.Failures {
			fmt.Fprintf(&b, "  - #%d %s: %s\n", t.SequenceID, t.Title, t.Reflection)
			if t.Result != "" {
				fmt.Fprintf(&b, "    Task #%d failed: %s\n", t.SequenceID, t.Result)
			}
		}
		b.WriteString("\n")
	}

	if r.Runs > 0 {
		fmt.Fprintf(&b, "Runs:        %d", r.Runs)
		if r.Interrupt > 0 {
			fmt.Fprintf(&b, " (%d interrupted)", r.Interrupt)
		}
		b.WriteString("\n")
	}
	if r.Duration > 0 {
		fmt.Fprintf(&b, "Duration:    %s\n", formatDuration(r.Duration))
	}

	if r.Final != "" {
		b.WriteString("\nResult:\n")
		for _, line := range strings.Split(strings.TrimSpace(r.Final), "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	b.WriteString("========================================\n")

	return b.String()
}

// WriteReport writes the formatted report to {dir}/{session id}.md and
// returns the path. Creates dir if it does not exist.
func WriteReport(dir string, report *Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	path := filepath.Join(dir, report.SessionID+".md")
	if err := os.WriteFile(path, []byte(FormatReport(report)), 0644); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}

	return path, nil
}

// computeDuration sums the time between each start or resume of the
// session and the next finish or interruption.
func computeDuration(sessionID string, events []log.LogEvent) time.Duration {
	var (
		total time.Duration
		start time.Time
	)
	for _, e := range events {
		if e.Session != sessionID || e.Time.IsZero() {
			continue
		}
		switch e.Event {
		case log.EventSessionStarted, log.EventSessionResumed:
			if start.IsZero() {
				start = e.Time
			}
		case log.EventSessionFinished, log.EventSessionInterrupted:
			if !start.IsZero() && e.Time.After(start) {
				total += e.Time.Sub(start)
			}
			start = time.Time{}
		}
	}
	return total
}

// formatDuration produces a human-readable duration string such as "5m 32s"
// or "1h 12m 5s". Sub-second durations are shown as "< 1s".
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
