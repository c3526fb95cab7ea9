// Package uxerror translates raw errors into user-facing messages with
// recovery hints for the CLI.
package uxerror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bizplan/internal/adapter/tui/theme"
	"bizplan/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the FriendlyError for the terminal.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(theme.TextError.Render(theme.SymbolError + " " + fe.Title))
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Sentinels first so errors.Is works through wrapping.
	{
		match: isErr(domain.ErrAgentNotFound),
		produce: func(err error) FriendlyError {
			var de *domain.DomainError
			msg := "No enabled agent has that name."
			if errors.As(err, &de) && de.Detail != "" {
				msg = fmt.Sprintf("No enabled agent is named %q.", de.Detail)
			}
			return FriendlyError{
				Title:   "Agent Not Found",
				Message: msg,
				Hints:   []string{"Run 'bizplan agents' to list the roster", "Check enabled: true in the agent's frontmatter"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match: isErr(domain.ErrConfigMissing),
		produce: constantError("Azure OpenAI Not Configured", "The model endpoint or deployment is missing.", []string{
			"Set AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT_NAME",
			"Or provision the deployment so .azure/deepagent/.env exists",
			"Run 'bizplan doctor' to check the setup",
		}),
	},
	{
		match: isErr(domain.ErrCircuitOpen),
		produce: constantError("Model Endpoint Unavailable", "Recent calls to the model failed, so requests are paused briefly.", []string{
			"Wait a minute and retry",
			"Run 'bizplan doctor' to test the deployment",
		}),
	},
	{
		match: isErr(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "Azure rejected the credential.", []string{
			"Run 'az login' or check the managed identity",
			"Confirm the identity has the Cognitive Services OpenAI User role",
		}),
	},
	{
		match: isErr(domain.ErrEmptyResponse),
		produce: constantError("Empty Answer", "The agent finished without producing text.", []string{
			"Rephrase the request",
			"Target a specific agent with --agent",
		}),
	},
	{
		match: isErr(context.DeadlineExceeded),
		produce: constantError("Request Timed Out", "The agent did not finish in time.", []string{
			"Try a narrower question",
			"Increase agents.invoke_timeout in config",
		}),
	},

	// Errors from external libraries only surface as text.
	{
		match: containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the remote service.", []string{
			"Check your internet connection",
			"Verify the Azure endpoint URL",
		}),
	},
	{
		match: containsAny("429", "rate limit", "too many requests"),
		produce: constantError("Rate Limited", "The deployment is over its tokens-per-minute capacity.", []string{
			"Wait a moment before retrying",
			"Raise the deployment capacity",
		}),
	},
	{
		match: containsAny("defaultazurecredential", "credential"),
		produce: constantError("No Azure Credential", "No usable Azure credential was found.", []string{
			"Run 'az login'",
			"Or set AZURE_CLIENT_ID, AZURE_TENANT_ID and AZURE_CLIENT_SECRET",
		}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with BIZPLAN_LOGGER_LEVEL=debug for more detail"},
		Raw:     err.Error(),
	}
}

func isErr(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// containsAny matches when the lowercased error text contains any substring.
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
