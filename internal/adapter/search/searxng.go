package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"bizplan/internal/domain"
)

// searxngResponse models the relevant portion of the SearXNG JSON response.
type searxngResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		Engine        string `json:"engine"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
}

// SearXNG searches via a self-hosted SearXNG instance's JSON API.
type SearXNG struct {
	client      *http.Client
	limiter     *rate.Limiter
	instanceURL string
	logger      *slog.Logger
}

// NewSearXNG creates a provider for the instance at instanceURL.
func NewSearXNG(instanceURL string, client *http.Client, limiter *rate.Limiter, logger *slog.Logger) *SearXNG {
	return &SearXNG{
		client:      client,
		limiter:     limiter,
		instanceURL: strings.TrimRight(instanceURL, "/"),
		logger:      logger,
	}
}

func (s *SearXNG) Name() string { return "searxng" }

func (s *SearXNG) Search(ctx context.Context, query string, maxResults int, mode domain.SearchMode) ([]domain.RawRecord, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	if err := waitTurn(ctx, s.limiter); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.instanceURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	if mode == domain.SearchNews {
		q.Set("categories", "news")
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	body, err := doRequest(s.client, req, s.Name())
	if err != nil {
		return nil, err
	}

	var resp searxngResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse searxng response: %w", err)
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
			"engine":  r.Engine,
			"date":    r.PublishedDate,
		})
	}

	s.logger.Debug("searxng search completed", "query", query, "mode", mode, "results", len(records))
	return records, nil
}
