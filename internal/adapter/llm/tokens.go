package llm

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/openai/openai-go"
	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// TokenEstimator counts prompt tokens with the cl100k_base encoding. The
// encoding tables are fetched on first use; if that fails the estimator
// falls back to four bytes per token.
type TokenEstimator struct {
	once   sync.Once
	enc    *tiktoken.Tiktoken
	logger *slog.Logger
	load   func() (*tiktoken.Tiktoken, error)
}

// NewTokenEstimator creates an estimator; the encoding loads lazily.
func NewTokenEstimator(logger *slog.Logger) *TokenEstimator {
	return &TokenEstimator{
		logger: logger,
		load:   func() (*tiktoken.Tiktoken, error) { return tiktoken.GetEncoding(encodingName) },
	}
}

// Count estimates the number of tokens in text.
func (e *TokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		enc, err := e.load()
		if err != nil {
			e.logger.Warn("token encoding unavailable, using byte heuristic", "encoding", encodingName, "error", err)
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// EstimateParams estimates the prompt size of a chat request, tool
// definitions included.
func (e *TokenEstimator) EstimateParams(params openai.ChatCompletionNewParams) int {
	msgs, err := json.Marshal(params.Messages)
	if err != nil {
		return 0
	}
	total := e.Count(string(msgs))
	if len(params.Tools) > 0 {
		if tools, err := json.Marshal(params.Tools); err == nil {
			total += e.Count(string(tools))
		}
	}
	return total
}
