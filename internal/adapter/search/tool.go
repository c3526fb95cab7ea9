// Package search implements the internet_search tool used by the agents: a
// provider call wrapped in bounded exponential-backoff retries whose result is
// always a block of text, never an error.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/trace"

	"bizplan/internal/domain"
	"bizplan/internal/infra/metrics"
	"bizplan/internal/infra/tracer"
)

const (
	DefaultMaxResults = 5
	maxResultsCap     = 20

	defaultMaxAttempts    = 5
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 60 * time.Second
)

// Sentinel texts returned by Search. Callers tell outcomes apart by content.
const (
	NoResultsMessage      = "No results found for this query."
	NoValidResultsMessage = "No valid results found after quality filtering."
)

// ExhaustedMessage is returned when no attempt succeeded.
func ExhaustedMessage(attempts int) string {
	return fmt.Sprintf("Error: Could not complete search after %d attempts.", attempts)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes a Tool. Zero values select the defaults.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Recorder
	Sleep          SleepFunc
}

// Tool is the resilient search tool. It holds no per-call state and is safe
// for concurrent use as long as its provider is.
type Tool struct {
	provider       domain.SearchProvider
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
	metrics        *metrics.Recorder
	sleep          SleepFunc
}

// NewTool wraps provider with retry, normalization and formatting.
func NewTool(provider domain.SearchProvider, opts Options) *Tool {
	t := &Tool{
		provider:       provider,
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		sleep:          opts.Sleep,
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = defaultMaxAttempts
	}
	if t.initialBackoff <= 0 {
		t.initialBackoff = defaultInitialBackoff
	}
	if t.maxBackoff <= 0 {
		t.maxBackoff = defaultMaxBackoff
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	if t.sleep == nil {
		t.sleep = sleepContext
	}
	return t
}

// ProviderName reports the backing provider.
func (t *Tool) ProviderName() string { return t.provider.Name() }

// Search runs query against the provider and returns formatted results or
// one of the sentinel texts. It never returns an error and never panics.
func (t *Tool) Search(ctx context.Context, query string, maxResults int, mode domain.SearchMode) string {
	if maxResults < 1 {
		maxResults = DefaultMaxResults
	}
	if maxResults > maxResultsCap {
		maxResults = maxResultsCap
	}
	if mode != domain.SearchNews {
		mode = domain.SearchGeneral
	}

	ctx, span := tracer.StartSpan(ctx, "tool.internet_search",
		trace.WithAttributes(
			tracer.StringAttr("search.provider", t.provider.Name()),
			tracer.StringAttr("search.mode", string(mode)),
			tracer.IntAttr("search.max_results", maxResults),
		),
	)
	defer span.End()

	t.logger.Info("searching", "query", query, "mode", mode, "max_results", maxResults)

	backoff := t.initialBackoff
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		raw, err := t.callProvider(ctx, query, maxResults, mode)
		t.metrics.ObserveSearchAttempt(t.provider.Name(), err)
		if err == nil {
			span.SetAttributes(tracer.IntAttr("search.attempts", attempt+1))
			return t.render(span, query, raw)
		}

		// Every failure is retried; transient is only recorded for diagnostics.
		transient := domain.IsRetryableError(err)
		t.logger.Warn("search attempt failed",
			"attempt", attempt+1, "max_attempts", t.maxAttempts, "query", query, "transient", transient, "error", err)
		span.AddEvent("attempt_failed", trace.WithAttributes(
			tracer.IntAttr("attempt", attempt+1),
			tracer.StringAttr("error", err.Error()),
			tracer.BoolAttr("transient", transient),
		))

		if attempt == t.maxAttempts-1 {
			break
		}

		wait := min(backoff, t.maxBackoff)
		t.logger.Info("retrying search", "wait", wait)
		t.metrics.ObserveBackoff(wait)
		span.AddEvent("backoff", trace.WithAttributes(tracer.DurationAttr("wait_ms", wait)))
		if err := t.sleep(ctx, wait); err != nil {
			t.logger.Warn("search abandoned", "query", query, "attempts", attempt+1, "error", err)
			tracer.RecordError(span, err)
			t.metrics.ObserveSearchOutcome("cancelled")
			return ExhaustedMessage(attempt + 1)
		}
		if backoff <= math.MaxInt64/2 {
			backoff *= 2
		}
	}

	t.logger.Error("all search attempts exhausted", "query", query, "attempts", t.maxAttempts)
	tracer.RecordError(span, fmt.Errorf("search exhausted after %d attempts", t.maxAttempts))
	t.metrics.ObserveSearchOutcome("exhausted")
	return ExhaustedMessage(t.maxAttempts)
}

// callProvider turns provider panics into errors so the retry loop sees them.
func (t *Tool) callProvider(ctx context.Context, query string, maxResults int, mode domain.SearchMode) (raw []domain.RawRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("search provider %s panicked: %v", t.provider.Name(), r)
		}
	}()
	return t.provider.Search(ctx, query, maxResults, mode)
}

func (t *Tool) render(span trace.Span, query string, raw []domain.RawRecord) string {
	if len(raw) == 0 {
		t.logger.Warn("no results found", "query", query)
		t.metrics.ObserveSearchOutcome("no_results")
		tracer.SetOK(span)
		return NoResultsMessage
	}

	records := Normalize(raw)
	if len(records) == 0 {
		t.logger.Warn("no valid results after quality check", "query", query, "raw", len(raw))
		t.metrics.ObserveSearchOutcome("filtered")
		tracer.SetOK(span)
		return NoValidResultsMessage
	}

	t.logger.Info("search succeeded", "query", query, "results", len(records), "dropped", len(raw)-len(records))
	span.SetAttributes(tracer.IntAttr("search.results", len(records)))
	t.metrics.ObserveSearchOutcome("ok")
	tracer.SetOK(span)
	return Format(records)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
