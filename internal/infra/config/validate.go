package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Missing Azure credentials are not a structural problem; see RequireAzure.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAzure(cfg, ve)
	validateAgents(cfg, ve)
	validateSearch(cfg, ve)
	validateServer(cfg, ve)
	validateCircuitBreaker(cfg, ve)
	validateObservability(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAzure(cfg *Config, ve *ValidationError) {
	if cfg.Azure.Capacity <= 0 {
		ve.Add("azure.capacity must be > 0")
	}
	if cfg.Azure.APIVersion == "" {
		ve.Add("azure.api_version must not be empty")
	}
	if cfg.Azure.TokenScope == "" {
		ve.Add("azure.token_scope must not be empty")
	}
	if cfg.Azure.Endpoint != "" {
		u, err := url.Parse(cfg.Azure.Endpoint)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			ve.Add("azure.endpoint must be an https URL, got %q", cfg.Azure.Endpoint)
		}
	}
	if cfg.Azure.Timeout <= 0 {
		ve.Add("azure.timeout must be > 0")
	}
	if cfg.Azure.MaxTokens < 0 {
		ve.Add("azure.max_tokens must be >= 0")
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	if cfg.Agents.Dir == "" {
		ve.Add("agents.dir must not be empty")
	}
	if cfg.Agents.InvokeTimeout <= 0 {
		ve.Add("agents.invoke_timeout must be > 0")
	}
}

var validSearchProviders = map[string]bool{
	"duckduckgo": true,
	"searxng":    true,
	"tavily":     true,
}

func validateSearch(cfg *Config, ve *ValidationError) {
	s := cfg.Search
	if !validSearchProviders[s.Provider] {
		ve.Add("search.provider %q is not supported (want duckduckgo, searxng or tavily)", s.Provider)
	}
	if s.Provider == "searxng" && s.SearXNGURL == "" {
		ve.Add("search.searxng_url is required when search.provider is searxng")
	}
	if s.Provider == "tavily" && s.TavilyAPIKey == "" {
		ve.Add("search.tavily_api_key (or TAVILY_API_KEY) is required when search.provider is tavily")
	}
	if s.MaxAttempts <= 0 {
		ve.Add("search.max_attempts must be > 0")
	}
	if s.InitialBackoff <= 0 {
		ve.Add("search.initial_backoff must be > 0")
	}
	if s.MaxBackoff < s.InitialBackoff {
		ve.Add("search.max_backoff must be >= search.initial_backoff")
	}
	if s.Timeout <= 0 {
		ve.Add("search.timeout must be > 0")
	}
	if s.RateLimit < 0 {
		ve.Add("search.rate_limit must be >= 0")
	}
}

func validateServer(cfg *Config, ve *ValidationError) {
	if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is invalid: %v", cfg.Server.Addr, err)
	}
	if cfg.Server.RateLimitRPM < 0 {
		ve.Add("server.rate_limit_rpm must be >= 0")
	}
	if cfg.Server.RateLimitRPM > 0 && cfg.Server.RateLimitBurst <= 0 {
		ve.Add("server.rate_limit_burst must be > 0 when rate limiting is enabled")
	}
}

func validateCircuitBreaker(cfg *Config, ve *ValidationError) {
	cb := cfg.CircuitBreaker
	if !cb.Enabled {
		return
	}
	if cb.MaxFailures == 0 {
		ve.Add("circuit_breaker.max_failures must be > 0 when enabled")
	}
	if cb.Timeout <= 0 {
		ve.Add("circuit_breaker.timeout must be > 0 when enabled")
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validExporters  = map[string]bool{"noop": true, "stdout": true, "": true}
)

func validateObservability(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want noop or stdout)", cfg.Tracer.Exporter)
	}
}
