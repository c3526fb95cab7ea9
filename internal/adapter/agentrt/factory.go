// Package agentrt builds ADK agents from agent specs and runs them.
package agentrt

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"

	"bizplan/internal/domain"
)

//go:embed orchestrator.md
var defaultOrchestratorPrompt string

const orchestratorDescription = "Plans business research, searches the web and delegates to specialist agents."

// Factory creates agents bound to one model and tool set.
type Factory struct {
	model              model.LLM
	tools              []tool.Tool
	orchestratorPrompt string
	logger             *slog.Logger
}

// NewFactory creates a Factory. An empty orchestratorPrompt selects the
// built-in one.
func NewFactory(m model.LLM, tools []tool.Tool, orchestratorPrompt string, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(orchestratorPrompt) == "" {
		orchestratorPrompt = defaultOrchestratorPrompt
	}
	return &Factory{model: m, tools: tools, orchestratorPrompt: strings.TrimSpace(orchestratorPrompt), logger: logger}
}

// LoadOrchestratorPrompt reads an override prompt; an empty path returns "".
func LoadOrchestratorPrompt(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read orchestrator prompt: %w", err)
	}
	return string(data), nil
}

// CreateAgentFromSpec builds one agent whose instruction is the spec's
// system prompt.
func (f *Factory) CreateAgentFromSpec(spec domain.AgentSpec) (agent.Agent, error) {
	a, err := llmagent.New(llmagent.Config{
		Name:        AgentName(spec.Name),
		Description: spec.Description,
		Instruction: spec.SystemPrompt,
		Model:       f.model,
		Tools:       f.tools,
	})
	if err != nil {
		return nil, fmt.Errorf("create agent %q: %w", spec.Name, err)
	}
	f.logger.Debug("agent created", "name", spec.Name)
	return a, nil
}

// CreateOrchestrator builds the default agent with every roster spec as a
// sub-agent it may transfer to. Later specs whose names collide with an
// earlier one are skipped.
func (f *Factory) CreateOrchestrator(roster []domain.AgentSpec) (agent.Agent, error) {
	var subAgents []agent.Agent
	var listed []domain.AgentSpec
	seen := map[string]bool{AgentName(domain.OrchestratorName): true}
	for _, spec := range roster {
		name := AgentName(spec.Name)
		if seen[name] {
			f.logger.Warn("roster name collision, skipping", "name", spec.Name, "source", spec.Source)
			continue
		}
		seen[name] = true

		sub, err := f.CreateAgentFromSpec(spec)
		if err != nil {
			return nil, err
		}
		subAgents = append(subAgents, sub)
		listed = append(listed, spec)
	}

	a, err := llmagent.New(llmagent.Config{
		Name:        AgentName(domain.OrchestratorName),
		Description: orchestratorDescription,
		Instruction: f.orchestratorPrompt + rosterSection(listed),
		Model:       f.model,
		Tools:       f.tools,
		SubAgents:   subAgents,
	})
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	f.logger.Debug("orchestrator created", "sub_agents", len(subAgents))
	return a, nil
}

func rosterSection(specs []domain.AgentSpec) string {
	if len(specs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n## Specialist agents\n")
	b.WriteString("Transfer to one of these agents with transfer_to_agent when the request matches its description:\n")
	for _, s := range specs {
		fmt.Fprintf(&b, "- %s: %s\n", AgentName(s.Name), s.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// AgentName turns a spec name into an identifier ADK accepts: letters,
// digits and underscores, not starting with a digit.
func AgentName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "agent"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "agent_" + out
	}
	return out
}
