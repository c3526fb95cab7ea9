package search

import (
	"fmt"
	"strings"

	"bizplan/internal/domain"
)

// Field aliases in priority order. Text search providers call the link
// "href" and the snippet "body"; news and JSON APIs use "url" with
// "description", "excerpt" or "content".
var (
	titleAliases   = []string{"title"}
	linkAliases    = []string{"href", "url", "link"}
	snippetAliases = []string{"body", "description", "excerpt", "content", "snippet"}
)

// Lookup returns the first alias holding a non-blank string, or def.
func Lookup(rec domain.RawRecord, def string, aliases ...string) string {
	for _, key := range aliases {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case fmt.Stringer:
			s = val.String()
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return def
}

// Normalize maps raw provider records to SearchRecords, keeping relative
// order and dropping records without both a title and a link.
func Normalize(raw []domain.RawRecord) []domain.SearchRecord {
	out := make([]domain.SearchRecord, 0, len(raw))
	for _, rec := range raw {
		r := domain.SearchRecord{
			Title:   Lookup(rec, "", titleAliases...),
			URL:     Lookup(rec, "", linkAliases...),
			Snippet: Lookup(rec, "", snippetAliases...),
		}
		if r.Title == "" || r.URL == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Format renders records as the numbered text block handed to the agent.
func Format(records []domain.SearchRecord) string {
	blocks := make([]string, len(records))
	for i, r := range records {
		blocks[i] = fmt.Sprintf("%d. **%s**\n   URL: %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.Join(blocks, "\n")
}
