package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"bizplan/internal/domain"
	"bizplan/internal/infra/config"
)

const (
	maxSearchBodySize = 1 << 20 // 1 MiB
	browserUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// NewProvider builds the provider selected by cfg. All providers share one
// rate limiter so concurrent agents cannot exceed cfg.RateLimit queries per second.
func NewProvider(cfg config.SearchConfig, logger *slog.Logger) (domain.SearchProvider, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := &http.Client{Timeout: cfg.Timeout}
	limiter := newLimiter(cfg.RateLimit)

	switch cfg.Provider {
	case "duckduckgo", "":
		return NewDuckDuckGo(client, limiter, logger), nil
	case "searxng":
		if cfg.SearXNGURL == "" {
			return nil, fmt.Errorf("searxng provider requires an instance URL")
		}
		return NewSearXNG(cfg.SearXNGURL, client, limiter, logger), nil
	case "tavily":
		if cfg.TavilyAPIKey == "" {
			return nil, fmt.Errorf("tavily provider requires an API key")
		}
		return NewTavily(cfg.TavilyAPIKey, cfg.TavilyDepth, client, limiter, logger), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}

// newLimiter returns nil (unlimited) for a non-positive rate.
func newLimiter(qps float64) *rate.Limiter {
	if qps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(qps), 1)
}

func waitTurn(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// doRequest sends req and returns the size-limited body of a 200 response.
// 429 (and DuckDuckGo's 202 throttle page) map to domain.ErrRateLimit.
func doRequest(client *http.Client, req *http.Request, provider string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s read response: %w", provider, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		provider == "duckduckgo" && resp.StatusCode == http.StatusAccepted:
		return nil, fmt.Errorf("%s (HTTP %d): %w", provider, resp.StatusCode, domain.ErrRateLimit)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s (HTTP %d): %w", provider, resp.StatusCode, domain.ErrProviderUnavailable)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s search failed (HTTP %d): %s", provider, resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is empty: %w", domain.ErrInvalidInput)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
