package tui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user leaves the prompt without an answer.
var ErrCancelled = errors.New("prompt cancelled")

// PromptModel asks for a single line of input.
type PromptModel struct {
	title     string
	input     textinput.Model
	submitted bool
	cancelled bool
	errMsg    string
}

// NewPromptModel creates a focused prompt with the given title.
func NewPromptModel(title, placeholder string) PromptModel {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 2000
	ti.Width = 72
	ti.Focus()
	return PromptModel{title: title, input: ti}
}

func (m PromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case KeyEnter:
			if strings.TrimSpace(m.input.Value()) == "" {
				m.errMsg = "Please enter an objective."
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		case KeyEsc, KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		}
	}

	m.errMsg = ""
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m PromptModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.errMsg != "" {
		b.WriteString(ErrorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString(DimStyle.Render("enter submit • esc cancel"))
	return BoxStyle.Render(b.String()) + "\n"
}

// Value returns the trimmed answer.
func (m PromptModel) Value() string {
	return strings.TrimSpace(m.input.Value())
}

// Submitted reports whether the user confirmed an answer.
func (m PromptModel) Submitted() bool {
	return m.submitted
}

// PromptObjective asks the user for an objective. On a terminal it runs a
// Bubble Tea prompt; otherwise it reads one line from in.
func PromptObjective(in io.Reader, out io.Writer) (string, error) {
	if !IsTTY() {
		return ReadLine(bufio.NewReader(in), out, "Enter your objective: ")
	}

	final, err := tea.NewProgram(NewPromptModel("What should I do?", "Describe your objective"), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return "", fmt.Errorf("running prompt: %w", err)
	}
	m, ok := final.(PromptModel)
	if !ok || !m.Submitted() {
		return "", ErrCancelled
	}
	return m.Value(), nil
}

// ReadLine prints label and reads one line from in. An empty line or end
// of input returns ErrCancelled. Callers asking several questions must
// reuse the same reader.
func ReadLine(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ErrCancelled
	}
	return line, nil
}
