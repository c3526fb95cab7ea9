package domain

// OrchestratorName is the agent_used value reported when no named agent is selected.
const OrchestratorName = "orchestrator"

// AgentSpec is one declaratively defined agent, parsed from a markdown file
// with a YAML frontmatter header.
type AgentSpec struct {
	Name         string `json:"name"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Enabled      bool   `json:"enabled"`
	SystemPrompt string `json:"-"`
	// Source is the file the spec was read from. Diagnostics only.
	Source string `json:"-"`
}

// DisplayName returns the title, falling back to the name.
func (s AgentSpec) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

// FindAgentSpec returns the first spec whose name matches.
func FindAgentSpec(specs []AgentSpec, name string) (AgentSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return AgentSpec{}, false
}
