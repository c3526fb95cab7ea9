package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"bizplan/internal/domain"
	"bizplan/internal/infra/config"
)

func offlineEstimator() *TokenEstimator {
	return &TokenEstimator{
		logger: slog.New(slog.DiscardHandler),
		load:   func() (*tiktoken.Tiktoken, error) { return nil, errors.New("offline") },
	}
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *AzureModel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	m := newAzureModel(client, config.AzureConfig{Deployment: "gpt-4o", Capacity: 40}, slog.New(slog.DiscardHandler))
	m.estimator = offlineEstimator()
	return m
}

func TestAzureModelGenerateContent(t *testing.T) {
	var got map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallCompletion)
	})

	var resps []*model.LLMResponse
	for resp, err := range m.GenerateContent(context.Background(), toolRoundTripRequest(), false) {
		require.NoError(t, err)
		resps = append(resps, resp)
	}

	require.Len(t, resps, 1)
	assert.Equal(t, "gpt-4o", got["model"])
	assert.Len(t, got["messages"], 4)
	assert.Equal(t, "internet_search", resps[0].Content.Parts[0].FunctionCall.Name)
	assert.Equal(t, "gpt-4o", m.Name())
}

func TestAzureModelErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusBadGateway, domain.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x","code":"x"}}`)
			})

			req := &model.LLMRequest{Contents: []*genai.Content{genai.NewContentFromText("hi", genai.RoleUser)}}
			for _, err := range m.GenerateContent(context.Background(), req, false) {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestAzureModelPing(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 50, body["max_tokens"])
		msg := body["messages"].([]any)[0].(map[string]any)
		assert.Equal(t, PingPrompt, msg["content"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hello! The deployment is working correctly."}}],
			"usage":{"prompt_tokens":14,"completion_tokens":9,"total_tokens":23}}`)
	})

	res, err := m.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello! The deployment is working correctly.", res.Reply)
	assert.EqualValues(t, 23, res.TotalTokens)
}

func TestNewAzureModelRequiresSettings(t *testing.T) {
	_, err := NewAzureModel(config.AzureConfig{Endpoint: "https://x.openai.azure.com"}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrConfigMissing)
}

func TestTokenEstimatorFallback(t *testing.T) {
	e := offlineEstimator()
	assert.Equal(t, 0, e.Count(""))
	assert.Equal(t, 3, e.Count("twelve bytes"))

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hello there")},
	}
	assert.Positive(t, e.EstimateParams(params))
}
