package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"bizplan/internal/domain"
)

const tavilyURL = "https://api.tavily.com/search"

// Tavily calls the Tavily search API. News mode maps to topic "news".
type Tavily struct {
	apiKey  string
	depth   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	url     string
}

// NewTavily constructs a Tavily provider. depth is "basic" or "advanced".
func NewTavily(apiKey, depth string, client *http.Client, limiter *rate.Limiter, logger *slog.Logger) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	return &Tavily{apiKey: apiKey, depth: depth, client: client, limiter: limiter, logger: logger, url: tavilyURL}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	Topic       string `json:"topic"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string, maxResults int, mode domain.SearchMode) ([]domain.RawRecord, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	if err := waitTurn(ctx, t.limiter); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		Topic:       string(mode),
		SearchDepth: t.depth,
		MaxResults:  maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encode tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := doRequest(t.client, req, t.Name())
	if err != nil {
		return nil, err
	}

	var resp tavilyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse tavily response: %w", err)
	}

	records := make([]domain.RawRecord, 0, min(len(resp.Results), maxResults))
	for _, r := range resp.Results {
		if len(records) >= maxResults {
			break
		}
		records = append(records, domain.RawRecord{
			"title":   r.Title,
			"url":     r.URL,
			"content": r.Content,
			"score":   r.Score,
			"date":    r.PublishedDate,
		})
	}
	t.logger.Debug("tavily search completed", "query", query, "topic", mode, "results", len(records))
	return records, nil
}
