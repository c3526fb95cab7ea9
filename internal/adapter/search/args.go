package search

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"bizplan/internal/domain"
)

// ArgsSchema is the JSON Schema for internet_search arguments, shared by the
// agent tool and the MCP server.
const ArgsSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "max_results": {"type": "integer", "minimum": 1, "maximum": 20},
    "topic": {"type": "string", "enum": ["general", "news"]}
  },
  "required": ["query"],
  "additionalProperties": false
}`

// Args are the arguments of one internet_search call.
type Args struct {
	Query      string `json:"query" jsonschema:"The search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results to return, default 5"`
	Topic      string `json:"topic,omitempty" jsonschema:"Search topic: general or news"`
}

// Mode maps Topic to a SearchMode; unknown topics search generally.
func (a Args) Mode() domain.SearchMode { return domain.ParseSearchMode(a.Topic) }

var argsSchema = mustCompile(ArgsSchema)

func mustCompile(src string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		panic(fmt.Sprintf("compile search args schema: %v", err))
	}
	return schema
}

// ParseArgs validates raw JSON arguments against ArgsSchema and decodes them.
func ParseArgs(raw []byte) (Args, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Args{}, fmt.Errorf("invalid JSON: %v: %w", err, domain.ErrInvalidInput)
	}
	if result := argsSchema.Validate(data); !result.IsValid() {
		return Args{}, fmt.Errorf("schema validation failed: %s: %w", result.Error(), domain.ErrInvalidInput)
	}
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return Args{}, fmt.Errorf("decode args: %v: %w", err, domain.ErrInvalidInput)
	}
	return args, nil
}
