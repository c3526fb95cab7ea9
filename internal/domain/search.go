package domain

import (
	"context"
	"strings"
)

// SearchMode selects the provider vertical.
type SearchMode string

const (
	SearchGeneral SearchMode = "general"
	SearchNews    SearchMode = "news"
)

// ParseSearchMode maps user input to a SearchMode. Anything other than "news"
// (case-insensitive) is general.
func ParseSearchMode(s string) SearchMode {
	if strings.EqualFold(strings.TrimSpace(s), string(SearchNews)) {
		return SearchNews
	}
	return SearchGeneral
}

// RawRecord is a provider-native search result. Field names differ between
// providers and between modes of the same provider.
type RawRecord map[string]any

// SearchRecord is a normalized search result.
type SearchRecord struct {
	Title   string
	URL     string
	Snippet string
}

// SearchProvider performs a single search against a web search backend.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int, mode SearchMode) ([]RawRecord, error)
	Name() string
}
