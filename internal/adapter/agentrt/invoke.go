package agentrt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"bizplan/internal/domain"
)

const (
	appName = "bizplan"
	userID  = "bizplan-user"
)

// Invoker runs an agent on one message in a throwaway in-memory session.
type Invoker struct {
	sessions session.Service
	logger   *slog.Logger
}

// NewInvoker creates an Invoker with its own in-memory session store.
func NewInvoker(logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Invoker{sessions: session.InMemoryService(), logger: logger}
}

// Invoke sends message to a and returns the text of the last model message.
// Tool calls and agent transfers are reported to onProgress, which may be nil.
func (inv *Invoker) Invoke(ctx context.Context, a agent.Agent, message string, onProgress func(domain.AgentProgress)) (string, error) {
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          a,
		SessionService: inv.sessions,
	})
	if err != nil {
		return "", fmt.Errorf("create runner: %w", err)
	}

	created, err := inv.sessions.Create(ctx, &session.CreateRequest{AppName: appName, UserID: userID})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	sessionID := created.Session.ID()
	defer func() {
		if err := inv.sessions.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		}); err != nil {
			inv.logger.Warn("delete session", "session", sessionID, "error", err)
		}
	}()

	var last string
	msg := genai.NewContentFromText(message, genai.RoleUser)
	for ev, err := range r.Run(ctx, userID, sessionID, msg, agent.RunConfig{}) {
		if err != nil {
			return "", fmt.Errorf("run agent %s: %w", a.Name(), err)
		}
		if ev == nil {
			continue
		}
		report(ev, onProgress)
		if ev.Partial || ev.Author == "user" {
			continue
		}
		if text := contentText(ev.Content); text != "" {
			last = text
		}
	}

	if last == "" {
		return "", fmt.Errorf("agent %s: %w", a.Name(), domain.ErrEmptyResponse)
	}
	return last, nil
}

func report(ev *session.Event, onProgress func(domain.AgentProgress)) {
	if onProgress == nil {
		return
	}
	if ev.Content != nil {
		for _, p := range ev.Content.Parts {
			if p != nil && p.FunctionCall != nil && p.FunctionCall.Name != transferTool {
				onProgress(domain.AgentProgress{Agent: ev.Author, ToolCall: p.FunctionCall.Name})
			}
		}
	}
	if to := ev.Actions.TransferToAgent; to != "" {
		onProgress(domain.AgentProgress{Agent: ev.Author, TransferTo: to})
	}
}

const transferTool = "transfer_to_agent"

func contentText(c *genai.Content) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}
