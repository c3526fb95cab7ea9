package search

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

// ToolName is the name agents use to call the search tool.
const ToolName = "internet_search"

// ToolDescription is shown to the model.
const ToolDescription = "Run a web search and return numbered results with title, URL and snippet. " +
	"Use topic 'news' for recent events. Results that lack a title or link are dropped."

// Result is what the agent tool returns to the model.
type Result struct {
	Result string `json:"result"`
}

// declaredArgs is the parameter shape advertised to the model. It carries
// types only; ArgsSchema owns the constraints so that a rejected call comes
// back to the model as text instead of a tool error.
func declaredArgs() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query":       {Type: "string", Description: "The search query (required, non-empty)"},
			"max_results": {Type: "integer", Description: "Maximum number of results to return, 1 to 20, default 5"},
			"topic":       {Type: "string", Description: "Search topic: general or news"},
		},
	}
}

// NewADKTool exposes t as an ADK function tool. Arguments are checked
// against ArgsSchema; invalid arguments and provider failures both come back
// as text in Result.
func NewADKTool(t *Tool) (tool.Tool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        ToolName,
			Description: ToolDescription,
			InputSchema: declaredArgs(),
		},
		func(ctx tool.Context, raw map[string]any) (Result, error) {
			args, err := parseArgsMap(raw)
			if err != nil {
				return Result{Result: "Invalid arguments: " + err.Error()}, nil
			}
			return Result{Result: t.Search(ctx, args.Query, args.MaxResults, args.Mode())}, nil
		},
	)
}

func parseArgsMap(raw map[string]any) (Args, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return Args{}, fmt.Errorf("encode args: %w", err)
	}
	return ParseArgs(b)
}
