package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"bizplan/internal/adapter/tui/theme"
	"bizplan/internal/domain"
)

// Banner renders a framed section heading.
func Banner(title string) string {
	return theme.Banner.Render(title)
}

// Markdown renders content for the terminal, wrapped at width. Rendering
// failures fall back to the raw text.
func Markdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(theme.Clamp(width, 20, theme.MaxContentWidth)),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// RenderResult renders the agent label followed by the markdown answer.
func RenderResult(res domain.ChatResult, width int) string {
	var b strings.Builder
	b.WriteString(theme.AgentLabel.Render(theme.SymbolArrowR + " " + res.AgentUsed))
	b.WriteByte('\n')
	b.WriteString(Markdown(res.Response, width))
	return b.String()
}
