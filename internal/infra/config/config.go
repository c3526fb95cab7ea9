package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bizplan/internal/domain"
)

// Config is the root configuration, built once at startup and passed down.
type Config struct {
	Azure          AzureConfig          `yaml:"azure"`
	Agents         AgentsConfig         `yaml:"agents"`
	Search         SearchConfig         `yaml:"search"`
	Server         ServerConfig         `yaml:"server"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Logger         LoggerConfig         `yaml:"logger"`
	Tracer         TracerConfig         `yaml:"tracer"`
}

// AzureConfig holds the Azure OpenAI deployment settings.
type AzureConfig struct {
	// EnvFile is a dotenv file written by the infrastructure provisioning step.
	// Values from it never override variables already set in the process.
	EnvFile    string        `yaml:"env_file"`
	Endpoint   string        `yaml:"endpoint"`
	Deployment string        `yaml:"deployment"`
	Capacity   int           `yaml:"capacity"` // thousands of tokens per minute
	APIVersion string        `yaml:"api_version"`
	TokenScope string        `yaml:"token_scope"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxTokens  int           `yaml:"max_tokens,omitempty"`
}

// AgentsConfig controls where agent specifications come from.
type AgentsConfig struct {
	Dir string `yaml:"dir"`
	// OrchestratorPromptFile replaces the built-in orchestrator instruction when set.
	OrchestratorPromptFile string        `yaml:"orchestrator_prompt_file,omitempty"`
	InvokeTimeout          time.Duration `yaml:"invoke_timeout"`
}

// SearchConfig holds internet search settings.
type SearchConfig struct {
	Provider       string        `yaml:"provider"` // "duckduckgo", "searxng" or "tavily"
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // queries per second, 0 disables throttling
	SearXNGURL     string        `yaml:"searxng_url,omitempty"`
	TavilyAPIKey   string        `yaml:"tavily_api_key,omitempty"`
	TavilyDepth    string        `yaml:"tavily_depth,omitempty"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RateLimitRPM   int           `yaml:"rate_limit_rpm"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	Metrics        bool          `yaml:"metrics"`
}

// CircuitBreakerConfig holds circuit breaker settings for the model endpoint.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	// File, when set, receives a copy of every record in addition to Output.
	File string `yaml:"file,omitempty"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"`
	ServiceName string `yaml:"service_name"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Azure: AzureConfig{
			EnvFile:    filepath.Join(".azure", "deepagent", ".env"),
			Capacity:   40,
			APIVersion: "2024-02-15-preview",
			TokenScope: "https://cognitiveservices.azure.com/.default",
			Timeout:    5 * time.Minute,
		},
		Agents: AgentsConfig{
			Dir:           "agents",
			InvokeTimeout: 15 * time.Minute,
		},
		Search: SearchConfig{
			Provider:       "duckduckgo",
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxBackoff:     60 * time.Second,
			Timeout:        15 * time.Second,
			RateLimit:      1,
			TavilyDepth:    "basic",
		},
		Server: ServerConfig{
			Addr:           ":5001",
			CORSOrigins:    []string{"*"},
			RateLimitRPM:   60,
			RateLimitBurst: 10,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   20 * time.Minute,
			Metrics:        true,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     60 * time.Second,
			Interval:    30 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Tracer: TracerConfig{
			Exporter:    "noop",
			ServiceName: "bizplan",
		},
	}
}

// Load reads the YAML file at path on top of Defaults, then the Azure env
// file, then environment overrides, and validates the result. A missing
// config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if _, err := LoadEnvFile(cfg.Azure.EnvFile); err != nil {
		return nil, err
	}
	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. It reports whether the file
// existed.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return true, fmt.Errorf("load env file %s: %w", path, err)
	}
	return true, nil
}

// ApplyEnvOverrides maps AZURE_OPENAI_* and BIZPLAN_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
		cfg.Azure.Endpoint = v
	}
	if v := os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME"); v != "" {
		cfg.Azure.Deployment = v
	}
	if v := os.Getenv("AZURE_OPENAI_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Azure.Capacity = n
		}
	}
	if v := os.Getenv("AZURE_OPENAI_API_VERSION"); v != "" {
		cfg.Azure.APIVersion = v
	}
	if v := os.Getenv("BIZPLAN_AGENTS_DIR"); v != "" {
		cfg.Agents.Dir = v
	}
	if v := os.Getenv("BIZPLAN_SEARCH_PROVIDER"); v != "" {
		cfg.Search.Provider = v
	}
	if v := os.Getenv("BIZPLAN_SEARXNG_URL"); v != "" {
		cfg.Search.SearXNGURL = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		cfg.Search.TavilyAPIKey = v
	}
	if v := os.Getenv("BIZPLAN_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("BIZPLAN_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitAndTrim(v, ",")
	}
	if v := os.Getenv("BIZPLAN_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BIZPLAN_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("BIZPLAN_LOGGER_FILE"); v != "" {
		cfg.Logger.File = v
	}
	if v := os.Getenv("BIZPLAN_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("BIZPLAN_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// RequireAzure reports the Azure settings that commands talking to the model
// cannot run without.
func (c *Config) RequireAzure() error {
	var missing []string
	if c.Azure.Endpoint == "" {
		missing = append(missing, "AZURE_OPENAI_ENDPOINT")
	}
	if c.Azure.Deployment == "" {
		missing = append(missing, "AZURE_OPENAI_DEPLOYMENT_NAME")
	}
	if len(missing) > 0 {
		return domain.NewDomainError("Config.RequireAzure", domain.ErrConfigMissing, strings.Join(missing, ", "))
	}
	return nil
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
