// Package llm adapts Azure OpenAI chat completions to the ADK model interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"google.golang.org/adk/model"

	"bizplan/internal/domain"
	"bizplan/internal/infra/config"
	"bizplan/internal/infra/tracer"
)

// PingPrompt is the test completion sent by Ping.
const PingPrompt = "Say 'Hello! The deployment is working correctly.'"

// AzureModel implements model.LLM on an Azure OpenAI deployment.
type AzureModel struct {
	client     openai.Client
	deployment string
	maxTokens  int
	estimator  *TokenEstimator
	capacity   int // K tokens per minute
	logger     *slog.Logger
}

var _ model.LLM = (*AzureModel)(nil)

// NewCredential returns the default Azure credential chain (environment,
// managed identity, Azure CLI).
func NewCredential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %v: %w", err, domain.ErrAuthInvalid)
	}
	return cred, nil
}

// CheckCredential acquires one token for scope.
func CheckCredential(ctx context.Context, cred azcore.TokenCredential, scope string) (time.Time, error) {
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return time.Time{}, fmt.Errorf("acquire token: %v: %w", err, domain.ErrAuthInvalid)
	}
	return tok.ExpiresOn, nil
}

// NewAzureModel builds a model for cfg using cred. Tokens are refreshed by
// the credential.
func NewAzureModel(cfg config.AzureConfig, cred azcore.TokenCredential, logger *slog.Logger) (*AzureModel, error) {
	if cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, domain.NewDomainError("llm.NewAzureModel", domain.ErrConfigMissing, "endpoint and deployment")
	}
	client := openai.NewClient(
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithTokenCredential(cred),
		option.WithHTTPClient(NewHTTPClient(cfg.Timeout)),
	)
	return newAzureModel(client, cfg, logger), nil
}

func newAzureModel(client openai.Client, cfg config.AzureConfig, logger *slog.Logger) *AzureModel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AzureModel{
		client:     client,
		deployment: cfg.Deployment,
		maxTokens:  cfg.MaxTokens,
		estimator:  NewTokenEstimator(logger),
		capacity:   cfg.Capacity,
		logger:     logger,
	}
}

// Name returns the deployment name.
func (m *AzureModel) Name() string { return m.deployment }

// GenerateContent sends one chat completion. Streaming is not used; a single
// complete response is yielded either way.
func (m *AzureModel) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *AzureModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.generate")
	defer span.End()

	params, err := toChatParams(m.deployment, req, m.maxTokens)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("build request: %w", err)
	}

	if est := m.estimator.EstimateParams(params); m.capacity > 0 && est > m.capacity*1000 {
		m.logger.Warn("prompt exceeds per-minute token capacity",
			"estimated_tokens", est, "capacity_tpm", m.capacity*1000)
	}

	start := time.Now()
	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = classifyError(err)
		tracer.RecordError(span, err)
		m.logger.Error("chat completion failed", "deployment", m.deployment, "error", err)
		return nil, err
	}

	resp, err := fromChatCompletion(completion)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", int(completion.Usage.PromptTokens)),
		tracer.IntAttr("llm.completion_tokens", int(completion.Usage.CompletionTokens)),
	)
	tracer.SetOK(span)
	m.logger.Debug("chat completion",
		"deployment", m.deployment,
		"duration", time.Since(start),
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens,
		"tool_calls", len(completion.Choices[0].Message.ToolCalls),
	)
	return resp, nil
}

// PingResult reports the outcome of a test completion.
type PingResult struct {
	Reply            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Ping sends PingPrompt with a 50 token limit.
func (m *AzureModel) Ping(ctx context.Context) (PingResult, error) {
	completion, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(m.deployment),
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(PingPrompt)},
		MaxTokens: openai.Int(50),
	})
	if err != nil {
		return PingResult{}, classifyError(err)
	}
	if len(completion.Choices) == 0 {
		return PingResult{}, fmt.Errorf("ping: no choices: %w", domain.ErrEmptyResponse)
	}
	return PingResult{
		Reply:            completion.Choices[0].Message.Content,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}, nil
}

// classifyError maps API status codes onto domain sentinels.
func classifyError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("azure openai: %w", err)
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("azure openai (HTTP %d): %w", apiErr.StatusCode, domain.ErrRateLimit)
	case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("azure openai (HTTP %d): %w", apiErr.StatusCode, domain.ErrAuthInvalid)
	case apiErr.StatusCode == http.StatusNotFound:
		return fmt.Errorf("azure openai deployment not found (HTTP 404): %w", domain.ErrNotFound)
	case apiErr.StatusCode >= 500:
		return fmt.Errorf("azure openai (HTTP %d): %w", apiErr.StatusCode, domain.ErrProviderUnavailable)
	default:
		return fmt.Errorf("azure openai: %w", err)
	}
}
