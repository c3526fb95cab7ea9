package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"bizplan/internal/domain"
)

const (
	ddgHTMLURL = "https://html.duckduckgo.com/html/"
	ddgSiteURL = "https://duckduckgo.com/"
	ddgNewsURL = "https://duckduckgo.com/news.js"
)

var vqdPattern = regexp.MustCompile(`vqd=["']?([0-9-]+)`)

// DuckDuckGo scrapes the HTML endpoint for general results and queries the
// news.js endpoint for news. Records keep DuckDuckGo's own field names
// (href/body for text, url/excerpt for news).
type DuckDuckGo struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	htmlURL string
	siteURL string
	newsURL string
}

// NewDuckDuckGo creates the provider. limiter may be nil.
func NewDuckDuckGo(client *http.Client, limiter *rate.Limiter, logger *slog.Logger) *DuckDuckGo {
	return &DuckDuckGo{
		client:  client,
		limiter: limiter,
		logger:  logger,
		htmlURL: ddgHTMLURL,
		siteURL: ddgSiteURL,
		newsURL: ddgNewsURL,
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int, mode domain.SearchMode) ([]domain.RawRecord, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	if err := waitTurn(ctx, d.limiter); err != nil {
		return nil, err
	}
	if mode == domain.SearchNews {
		return d.news(ctx, query, maxResults)
	}
	return d.text(ctx, query, maxResults)
}

func (d *DuckDuckGo) text(ctx context.Context, query string, maxResults int) ([]domain.RawRecord, error) {
	form := url.Values{}
	form.Set("q", query)
	form.Set("b", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.htmlURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", d.siteURL)

	body, err := doRequest(d.client, req, d.Name())
	if err != nil {
		return nil, err
	}

	records, err := parseDDGHTML(body, maxResults)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("duckduckgo text search completed", "query", query, "results", len(records))
	return records, nil
}

// parseDDGHTML extracts organic results, skipping ads.
func parseDDGHTML(body []byte, maxResults int) ([]domain.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}

	var records []domain.RawRecord
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		href, _ := link.Attr("href")
		records = append(records, domain.RawRecord{
			"title": strings.TrimSpace(link.Text()),
			"href":  resolveDDGRedirect(href),
			"body":  strings.TrimSpace(s.Find(".result__snippet").First().Text()),
		})
		return len(records) < maxResults
	})
	return records, nil
}

// resolveDDGRedirect unwraps //duckduckgo.com/l/?uddg=<target> links.
func resolveDDGRedirect(href string) string {
	if !strings.Contains(href, "/l/?") {
		return href
	}
	raw := href
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

type ddgNewsResponse struct {
	Results []struct {
		Date    int64  `json:"date"`
		Title   string `json:"title"`
		Excerpt string `json:"excerpt"`
		URL     string `json:"url"`
		Image   string `json:"image"`
		Source  string `json:"source"`
	} `json:"results"`
}

func (d *DuckDuckGo) news(ctx context.Context, query string, maxResults int) ([]domain.RawRecord, error) {
	vqd, err := d.fetchVQD(ctx, query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.newsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("l", "wt-wt")
	q.Set("o", "json")
	q.Set("noamp", "1")
	q.Set("q", query)
	q.Set("vqd", vqd)
	q.Set("p", "-1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Referer", d.siteURL)

	body, err := doRequest(d.client, req, d.Name())
	if err != nil {
		return nil, err
	}

	var resp ddgNewsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse duckduckgo news: %w", err)
	}

	records := make([]domain.RawRecord, 0, min(len(resp.Results), maxResults))
	for _, r := range resp.Results {
		if len(records) >= maxResults {
			break
		}
		rec := domain.RawRecord{
			"title":   r.Title,
			"url":     r.URL,
			"excerpt": r.Excerpt,
			"source":  r.Source,
			"image":   r.Image,
		}
		if r.Date > 0 {
			rec["date"] = time.Unix(r.Date, 0).UTC().Format(time.RFC3339)
		}
		records = append(records, rec)
	}
	d.logger.Debug("duckduckgo news search completed", "query", query, "results", len(records))
	return records, nil
}

// fetchVQD obtains the per-query token the JSON endpoints require.
func (d *DuckDuckGo) fetchVQD(ctx context.Context, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.siteURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", browserUserAgent)

	body, err := doRequest(d.client, req, d.Name())
	if err != nil {
		return "", err
	}
	m := vqdPattern.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("duckduckgo: vqd token not found: %w", domain.ErrProviderUnavailable)
	}
	return string(m[1]), nil
}
