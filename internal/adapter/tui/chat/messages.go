// Package chat renders a one-shot agent request in the terminal: a spinner
// fed by progress events, then the answer as markdown.
package chat

import "bizplan/internal/domain"

// StatusMsg carries one progress status from the running agent.
type StatusMsg struct {
	Text string
}

// DoneMsg signals that the agent finished.
type DoneMsg struct {
	Result domain.ChatResult
	Err    error
}

// QuitMsg stops the program without a result.
type QuitMsg struct{}
