package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// toChatParams converts an ADK request into chat completion parameters.
// deployment is the Azure deployment name, sent as the model.
func toChatParams(deployment string, req *model.LLMRequest, maxTokens int) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(deployment),
	}

	if cfg := req.Config; cfg != nil {
		if sys := joinText(cfg.SystemInstruction); sys != "" {
			params.Messages = append(params.Messages, openai.SystemMessage(sys))
		}
		if cfg.MaxOutputTokens > 0 {
			maxTokens = int(cfg.MaxOutputTokens)
		}
		if cfg.Temperature != nil {
			params.Temperature = openai.Float(float64(*cfg.Temperature))
		}
		tools, err := toChatTools(cfg.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	for _, content := range req.Contents {
		params.Messages = append(params.Messages, toChatMessages(content)...)
	}
	if len(params.Messages) == 0 {
		return params, fmt.Errorf("request has no messages")
	}
	return params, nil
}

func toChatTools(tools []*genai.Tool) ([]openai.ChatCompletionToolParam, error) {
	var out []openai.ChatCompletionToolParam
	for _, t := range tools {
		if t == nil {
			continue
		}
		for _, fd := range t.FunctionDeclarations {
			schema, err := parametersOf(fd)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", fd.Name, err)
			}
			def := shared.FunctionDefinitionParam{
				Name:       fd.Name,
				Parameters: shared.FunctionParameters(schema),
			}
			if fd.Description != "" {
				def.Description = openai.String(fd.Description)
			}
			out = append(out, openai.ChatCompletionToolParam{Function: def})
		}
	}
	return out, nil
}

// parametersOf returns the declaration's JSON schema as a generic map.
// genai schemas use upper-case type names, which are lower-cased here.
func parametersOf(fd *genai.FunctionDeclaration) (map[string]any, error) {
	var src any
	switch {
	case fd.ParametersJsonSchema != nil:
		src = fd.ParametersJsonSchema
	case fd.Parameters != nil:
		src = fd.Parameters
	default:
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}

	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	lowerTypes(schema)
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema, nil
}

func lowerTypes(v any) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if s, ok := child.(string); ok && k == "type" {
				node[k] = strings.ToLower(s)
				continue
			}
			lowerTypes(child)
		}
	case []any:
		for _, child := range node {
			lowerTypes(child)
		}
	}
}

// toChatMessages maps one genai content to chat messages. A user content
// carrying function responses becomes one tool message per response.
func toChatMessages(content *genai.Content) []openai.ChatCompletionMessageParamUnion {
	if content == nil || len(content.Parts) == 0 {
		return nil
	}

	if content.Role == genai.RoleModel {
		var asst openai.ChatCompletionAssistantMessageParam
		var text strings.Builder
		for i, part := range content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
			if fc := part.FunctionCall; fc != nil {
				args, _ := json.Marshal(fc.Args)
				if fc.Args == nil {
					args = []byte("{}")
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: callID(fc.ID, i),
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      fc.Name,
						Arguments: string(args),
					},
				})
			}
		}
		if text.Len() == 0 && len(asst.ToolCalls) == 0 {
			return nil
		}
		if text.Len() > 0 {
			asst.Content.OfString = openai.String(text.String())
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &asst}}
	}

	var out []openai.ChatCompletionMessageParamUnion
	var text strings.Builder
	for i, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text.WriteString(part.Text)
		if fr := part.FunctionResponse; fr != nil {
			out = append(out, openai.ToolMessage(functionResponseText(fr.Response), callID(fr.ID, i)))
		}
	}
	if text.Len() > 0 {
		out = append(out, openai.UserMessage(text.String()))
	}
	return out
}

func callID(id string, idx int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("call_%d", idx)
}

// functionResponseText unwraps {"result": "..."} to the bare string and
// JSON-encodes anything else.
func functionResponseText(resp map[string]any) string {
	if len(resp) == 0 {
		return "Tool returned no response"
	}
	if len(resp) == 1 {
		if s, ok := resp["result"].(string); ok {
			return s
		}
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprint(resp)
	}
	return string(b)
}

func joinText(c *genai.Content) string {
	if c == nil {
		return ""
	}
	var parts []string
	for _, p := range c.Parts {
		if p != nil && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// fromChatCompletion converts the first choice into an ADK response.
func fromChatCompletion(resp *openai.ChatCompletion) (*model.LLMResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion has no choices")
	}
	choice := resp.Choices[0]
	msg := choice.Message

	var parts []*genai.Part
	if msg.Content != "" {
		parts = append(parts, genai.NewPartFromText(msg.Content))
	} else if msg.Refusal != "" {
		parts = append(parts, genai.NewPartFromText(msg.Refusal))
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("tool call %s: invalid arguments: %w", tc.Function.Name, err)
			}
		}
		parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		}})
	}

	out := &model.LLMResponse{
		Content:      &genai.Content{Role: genai.RoleModel, Parts: parts},
		TurnComplete: true,
		FinishReason: finishReason(choice.FinishReason),
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(resp.Usage.PromptTokens),
			CandidatesTokenCount: int32(resp.Usage.CompletionTokens),
			TotalTokenCount:      int32(resp.Usage.TotalTokens),
		},
	}
	return out, nil
}

func finishReason(r string) genai.FinishReason {
	switch r {
	case "stop", "tool_calls", "function_call":
		return genai.FinishReasonStop
	case "length":
		return genai.FinishReasonMaxTokens
	case "content_filter":
		return genai.FinishReasonSafety
	default:
		return genai.FinishReasonOther
	}
}
