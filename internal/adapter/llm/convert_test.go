package llm

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func toolRoundTripRequest() *model.LLMRequest {
	return &model.LLMRequest{
		Contents: []*genai.Content{
			genai.NewContentFromText("Analyze the BI market", genai.RoleUser),
			{Role: genai.RoleModel, Parts: []*genai.Part{
				{Text: "Searching."},
				{FunctionCall: &genai.FunctionCall{ID: "call_1", Name: "internet_search", Args: map[string]any{"query": "BI tools"}}},
			}},
			{Role: genai.RoleUser, Parts: []*genai.Part{
				{FunctionResponse: &genai.FunctionResponse{ID: "call_1", Name: "internet_search", Response: map[string]any{"result": "1. **Tableau**"}}},
			}},
		},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText("You are an analyst.", genai.RoleUser),
			Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        "internet_search",
				Description: "Search the web",
				ParametersJsonSchema: map[string]any{
					"type":       "object",
					"properties": map[string]any{"query": map[string]any{"type": "string"}},
					"required":   []any{"query"},
				},
			}}}},
		},
	}
}

// asJSON round-trips params through their wire encoding.
func asJSON(t *testing.T, params openai.ChatCompletionNewParams) map[string]any {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestToChatParamsToolRoundTrip(t *testing.T) {
	params, err := toChatParams("gpt-4o", toolRoundTripRequest(), 4096)
	require.NoError(t, err)
	body := asJSON(t, params)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, 4096, body["max_tokens"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 4)

	sys := msgs[0].(map[string]any)
	assert.Equal(t, "system", sys["role"])
	assert.Equal(t, "You are an analyst.", sys["content"])

	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])

	asst := msgs[2].(map[string]any)
	assert.Equal(t, "assistant", asst["role"])
	assert.Equal(t, "Searching.", asst["content"])
	call := asst["tool_calls"].([]any)[0].(map[string]any)
	assert.Equal(t, "call_1", call["id"])
	fn := call["function"].(map[string]any)
	assert.Equal(t, "internet_search", fn["name"])
	assert.JSONEq(t, `{"query":"BI tools"}`, fn["arguments"].(string))

	tool := msgs[3].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
	assert.Equal(t, "1. **Tableau**", tool["content"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	def := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "internet_search", def["name"])
	assert.Equal(t, "Search the web", def["description"])
	assert.Equal(t, "object", def["parameters"].(map[string]any)["type"])
}

func TestToChatParamsGenaiSchemaLowercased(t *testing.T) {
	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText("hi", genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			MaxOutputTokens: 256,
			Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name: "transfer_to_agent",
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: map[string]*genai.Schema{"agent_name": {Type: genai.TypeString}},
				},
			}}}},
		},
	}
	params, err := toChatParams("d", req, 0)
	require.NoError(t, err)
	body := asJSON(t, params)

	assert.EqualValues(t, 256, body["max_tokens"])
	def := body["tools"].([]any)[0].(map[string]any)["function"].(map[string]any)
	schema := def["parameters"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	prop := schema["properties"].(map[string]any)["agent_name"].(map[string]any)
	assert.Equal(t, "string", prop["type"])
}

func TestToChatParamsEmpty(t *testing.T) {
	_, err := toChatParams("d", &model.LLMRequest{}, 0)
	assert.Error(t, err)
}

func TestToChatMessagesSkipsThoughtsAndEmpty(t *testing.T) {
	assert.Nil(t, toChatMessages(nil))
	assert.Nil(t, toChatMessages(&genai.Content{Role: genai.RoleModel}))
	assert.Nil(t, toChatMessages(&genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: "hidden", Thought: true}}}))
}

func TestFunctionResponseText(t *testing.T) {
	assert.Equal(t, "plain", functionResponseText(map[string]any{"result": "plain"}))
	assert.Equal(t, "Tool returned no response", functionResponseText(nil))
	assert.JSONEq(t, `{"error":"boom"}`, functionResponseText(map[string]any{"error": "boom"}))
}

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [{
        "id": "call_9",
        "type": "function",
        "function": {"name": "internet_search", "arguments": "{\"query\":\"CoCA benchmarks\",\"topic\":\"news\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 120, "completion_tokens": 12, "total_tokens": 132}
}`

func TestFromChatCompletionToolCall(t *testing.T) {
	var completion openai.ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(toolCallCompletion), &completion))

	resp, err := fromChatCompletion(&completion)
	require.NoError(t, err)
	assert.Equal(t, genai.FinishReasonStop, resp.FinishReason)
	require.Len(t, resp.Content.Parts, 1)
	fc := resp.Content.Parts[0].FunctionCall
	require.NotNil(t, fc)
	assert.Equal(t, "call_9", fc.ID)
	assert.Equal(t, "internet_search", fc.Name)
	assert.Equal(t, map[string]any{"query": "CoCA benchmarks", "topic": "news"}, fc.Args)
	assert.EqualValues(t, 132, resp.UsageMetadata.TotalTokenCount)
}

func TestFromChatCompletionErrors(t *testing.T) {
	_, err := fromChatCompletion(&openai.ChatCompletion{})
	assert.Error(t, err)

	var completion openai.ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(`{"choices":[{"finish_reason":"tool_calls","message":{"role":"assistant","tool_calls":[{"id":"c","type":"function","function":{"name":"f","arguments":"{not json"}}]}}]}`), &completion))
	_, err = fromChatCompletion(&completion)
	assert.Error(t, err)
}

func TestFinishReason(t *testing.T) {
	assert.Equal(t, genai.FinishReasonStop, finishReason("stop"))
	assert.Equal(t, genai.FinishReasonMaxTokens, finishReason("length"))
	assert.Equal(t, genai.FinishReasonSafety, finishReason("content_filter"))
	assert.Equal(t, genai.FinishReasonOther, finishReason("weird"))
}
