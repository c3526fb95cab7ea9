package chat

import (
	"bytes"
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizplan/internal/domain"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModelTracksSteps(t *testing.T) {
	m := NewModel(nil, nil)

	m, _ = update(t, m, StatusMsg{Text: "Initializing agent..."})
	m, _ = update(t, m, StatusMsg{Text: "Initializing agent..."})
	m, _ = update(t, m, StatusMsg{Text: "Agent is thinking and planning..."})
	assert.Equal(t, []string{"Initializing agent..."}, m.Steps())
	assert.Contains(t, m.View(), "Agent is thinking and planning...")

	res := domain.ChatResult{Response: "done", AgentUsed: "orchestrator"}
	m, cmd := update(t, m, DoneMsg{Result: res})
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"Initializing agent...", "Agent is thinking and planning..."}, m.Steps())

	got, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, res, got)
}

func TestModelCtrlCCancels(t *testing.T) {
	cancelled := false
	m := NewModel(nil, func() { cancelled = true })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
	_, err := m.Result()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelIgnoresOtherKeys(t *testing.T) {
	m := NewModel(nil, nil)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd)
}

func TestRunPlain(t *testing.T) {
	var out bytes.Buffer
	stream := func(_ context.Context, emit func(domain.ChatEvent)) (domain.ChatResult, error) {
		emit(domain.StatusEvent("Initializing agent..."))
		emit(domain.StatusEvent("Creating orchestrator..."))
		res := domain.ChatResult{Response: "# Plan\n\nShip it.", AgentUsed: "orchestrator"}
		emit(domain.ChatEvent{Type: domain.ChatEventResponse, Response: res.Response, AgentUsed: res.AgentUsed})
		return res, nil
	}

	res, err := Run(context.Background(), stream, Options{Output: &out, Plain: true})
	require.NoError(t, err)
	assert.Equal(t, "orchestrator", res.AgentUsed)

	text := out.String()
	assert.Contains(t, text, "Initializing agent...")
	assert.Contains(t, text, "Creating orchestrator...")
	assert.Contains(t, text, "orchestrator")
	assert.Contains(t, text, "Ship it.")
}

func TestRunPlainError(t *testing.T) {
	var out bytes.Buffer
	boom := errors.New("boom")
	stream := func(context.Context, func(domain.ChatEvent)) (domain.ChatResult, error) {
		return domain.ChatResult{}, boom
	}

	_, err := Run(context.Background(), stream, Options{Output: &out, Plain: true})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, out.String())
}

func TestMarkdownAndBanner(t *testing.T) {
	assert.Contains(t, Markdown("**Revenue** grows", 80), "Revenue")
	assert.Contains(t, Banner("Example 1: Competitive Analysis"), "Example 1: Competitive Analysis")
}
