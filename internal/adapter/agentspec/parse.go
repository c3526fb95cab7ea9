// Package agentspec loads agent definitions from markdown files with a YAML
// metadata header.
package agentspec

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"bizplan/internal/domain"
)

const (
	// maxSpecFileSize is the largest spec file read (1 MiB).
	maxSpecFileSize = 1 << 20

	delimiter      = "---"
	promptHeading  = "# System Prompt"
	specFileSuffix = ".md"
)

// ParseAgentSpec reads one spec file. Malformed files yield a
// *domain.FormatError and no partial spec.
func ParseAgentSpec(path string) (domain.AgentSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.AgentSpec{}, fmt.Errorf("open agent spec: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSpecFileSize+1))
	if err != nil {
		return domain.AgentSpec{}, fmt.Errorf("read agent spec %s: %w", path, err)
	}
	if len(data) > maxSpecFileSize {
		return domain.AgentSpec{}, &domain.FormatError{Path: path, Reason: fmt.Sprintf("file exceeds %d bytes", maxSpecFileSize)}
	}

	spec, err := parse(path, string(data))
	if err != nil {
		return domain.AgentSpec{}, err
	}
	spec.Source = path
	return spec, nil
}

func parse(path, content string) (domain.AgentSpec, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, delimiter) {
		return domain.AgentSpec{}, &domain.FormatError{Path: path, Reason: "missing frontmatter delimiter"}
	}

	parts := strings.SplitN(content, delimiter, 3)
	if len(parts) < 3 {
		return domain.AgentSpec{}, &domain.FormatError{Path: path, Reason: "missing closing frontmatter delimiter"}
	}

	var meta map[string]any
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(parts[1]), &node); err != nil {
		return domain.AgentSpec{}, &domain.FormatError{Path: path, Reason: "invalid metadata", Err: err}
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return domain.AgentSpec{}, &domain.FormatError{Path: path, Reason: "metadata is not a mapping"}
	}
	if err := node.Content[0].Decode(&meta); err != nil {
		return domain.AgentSpec{}, &domain.FormatError{Path: path, Reason: "invalid metadata", Err: err}
	}

	enabled, err := boolField(meta, "enabled", true)
	if err != nil {
		return domain.AgentSpec{}, &domain.FormatError{Path: path, Reason: "invalid metadata", Err: err}
	}

	return domain.AgentSpec{
		Name:         stringField(meta, "name"),
		Title:        stringField(meta, "title"),
		Description:  stringField(meta, "description"),
		Enabled:      enabled,
		SystemPrompt: systemPrompt(parts[2]),
	}, nil
}

// systemPrompt trims the body and drops a leading "# System Prompt" line.
func systemPrompt(body string) string {
	body = strings.TrimSpace(body)
	first, rest, _ := strings.Cut(body, "\n")
	if strings.TrimRight(first, " \t\r") == promptHeading {
		return strings.TrimSpace(rest)
	}
	return body
}

func stringField(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

func boolField(meta map[string]any, key string, def bool) (bool, error) {
	switch v := meta[key].(type) {
	case nil:
		return def, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%s: want a boolean, got %q", key, v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s: want a boolean, got %T", key, v)
	}
}
