package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/adk/model"

	"bizplan/internal/domain"
	"bizplan/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerModel wraps a model.LLM with a circuit breaker. After MaxFailures
// consecutive failed generations the circuit opens and calls fail fast with
// domain.ErrCircuitOpen until Timeout elapses and a probe succeeds.
type BreakerModel struct {
	inner   model.LLM
	breaker *gobreaker.CircuitBreaker[[]*model.LLMResponse]
	logger  *slog.Logger
}

var _ model.LLM = (*BreakerModel)(nil)

// NewBreakerModel wraps inner. Zero config fields select defaults.
func NewBreakerModel(inner model.LLM, cfg config.CircuitBreakerConfig, logger *slog.Logger) *BreakerModel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[[]*model.LLMResponse](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Caller cancellation says nothing about the endpoint's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerModel{inner: inner, breaker: cb, logger: logger}
}

// Name implements model.LLM.
func (b *BreakerModel) Name() string { return b.inner.Name() }

// GenerateContent collects the inner responses through the breaker and then
// replays them.
func (b *BreakerModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resps, err := b.breaker.Execute(func() ([]*model.LLMResponse, error) {
			var out []*model.LLMResponse
			for resp, err := range b.inner.GenerateContent(ctx, req, stream) {
				if err != nil {
					return out, err
				}
				out = append(out, resp)
			}
			return out, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf("model %q: %v: %w", b.inner.Name(), err, domain.ErrCircuitOpen)
			}
			yield(nil, err)
			return
		}
		for _, resp := range resps {
			if !yield(resp, nil) {
				return
			}
		}
	}
}

// State returns the current breaker state.
func (b *BreakerModel) State() gobreaker.State { return b.breaker.State() }

// Counts returns the current breaker counters.
func (b *BreakerModel) Counts() gobreaker.Counts { return b.breaker.Counts() }

// Pooled transport settings for the model endpoint: one host, a handful of
// concurrent requests, long-lived connections.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
	defaultConnTimeout         = 30 * time.Second
	defaultRespTimeout         = 5 * time.Minute
)

// NewPooledTransport creates an http.Transport with connection pooling.
func NewPooledTransport(connTimeout, respTimeout time.Duration) *http.Transport {
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout <= 0 {
		respTimeout = defaultRespTimeout
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       defaultMaxConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient returns a client whose overall timeout is the connect
// timeout plus respTimeout.
func NewHTTPClient(respTimeout time.Duration) *http.Client {
	if respTimeout <= 0 {
		respTimeout = defaultRespTimeout
	}
	return &http.Client{
		Transport: NewPooledTransport(defaultConnTimeout, respTimeout),
		Timeout:   defaultConnTimeout + respTimeout,
	}
}
