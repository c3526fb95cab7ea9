package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bizplan/internal/adapter/tui/theme"
	"bizplan/internal/domain"
)

// Model is the Bubble Tea model for one in-flight request.
type Model struct {
	spinner spinner.Model
	status  string
	steps   []string
	done    bool
	result  domain.ChatResult
	err     error
	cancel  context.CancelFunc
	start   tea.Cmd
}

// NewModel creates a Model. start runs the request and must eventually
// produce a DoneMsg; cancel aborts it on ctrl+c.
func NewModel(start tea.Cmd, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)
	return Model{spinner: s, start: start, cancel: cancel}
}

// Init starts the spinner and the request.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start)
}

// Update handles progress, completion and interrupts.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StatusMsg:
		if m.status != "" && m.status != msg.Text {
			m.steps = append(m.steps, m.status)
		}
		m.status = msg.Text
		return m, nil
	case DoneMsg:
		if m.status != "" {
			m.steps = append(m.steps, m.status)
			m.status = ""
		}
		m.done = true
		m.result, m.err = msg.Result, msg.Err
		return m, tea.Quit
	case QuitMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			if m.cancel != nil {
				m.cancel()
			}
			m.done = true
			m.err = context.Canceled
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View lists completed steps and the spinner on the current one.
func (m Model) View() string {
	var b strings.Builder
	for _, s := range m.steps {
		b.WriteString(theme.TextMuted.Render(theme.SymbolSuccess + " " + s))
		b.WriteByte('\n')
	}
	if !m.done && m.status != "" {
		b.WriteString(m.spinner.View() + " " + theme.TextInfo.Render(m.status))
		b.WriteByte('\n')
	}
	return b.String()
}

// Result returns the final answer once the model is done.
func (m Model) Result() (domain.ChatResult, error) { return m.result, m.err }

// Steps returns the completed status lines.
func (m Model) Steps() []string { return m.steps }
