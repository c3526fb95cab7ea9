package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bizplan/internal/domain"
)

// unsetEnv clears key for the duration of the test, restoring it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func clearAzureEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AZURE_OPENAI_ENDPOINT",
		"AZURE_OPENAI_DEPLOYMENT_NAME",
		"AZURE_OPENAI_CAPACITY",
		"AZURE_OPENAI_API_VERSION",
	} {
		unsetEnv(t, k)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Azure.Capacity != 40 {
		t.Errorf("Capacity = %d, want 40", cfg.Azure.Capacity)
	}
	if cfg.Azure.APIVersion != "2024-02-15-preview" {
		t.Errorf("APIVersion = %q", cfg.Azure.APIVersion)
	}
	if cfg.Search.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Search.MaxAttempts)
	}
	if cfg.Search.InitialBackoff != time.Second || cfg.Search.MaxBackoff != time.Minute {
		t.Errorf("backoff = %v..%v, want 1s..1m", cfg.Search.InitialBackoff, cfg.Search.MaxBackoff)
	}
	if cfg.Server.Addr != ":5001" {
		t.Errorf("Addr = %q, want :5001", cfg.Server.Addr)
	}
	if cfg.Agents.Dir != "agents" {
		t.Errorf("Agents.Dir = %q", cfg.Agents.Dir)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	clearAzureEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.Provider != "duckduckgo" {
		t.Errorf("expected defaults, got provider %q", cfg.Search.Provider)
	}
}

func TestLoadYAML(t *testing.T) {
	clearAzureEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
azure:
  endpoint: "https://example.openai.azure.com/"
  deployment: "gpt-4o"
  capacity: 80
agents:
  dir: "/srv/agents"
search:
  provider: "searxng"
  searxng_url: "http://localhost:8888"
  max_attempts: 3
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Azure.Deployment != "gpt-4o" || cfg.Azure.Capacity != 80 {
		t.Errorf("Azure = %+v", cfg.Azure)
	}
	if cfg.Agents.Dir != "/srv/agents" {
		t.Errorf("Agents.Dir = %q", cfg.Agents.Dir)
	}
	if cfg.Search.Provider != "searxng" || cfg.Search.MaxAttempts != 3 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	// untouched fields keep their defaults
	if cfg.Search.MaxBackoff != time.Minute {
		t.Errorf("MaxBackoff = %v, want default 1m", cfg.Search.MaxBackoff)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("azure: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected permission error for world-writable config")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("search:\n  provider: bing\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearAzureEnv(t)
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://env.openai.azure.com/")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "env-deploy")
	t.Setenv("AZURE_OPENAI_CAPACITY", "120")
	t.Setenv("BIZPLAN_AGENTS_DIR", "/tmp/agents")
	t.Setenv("BIZPLAN_CORS_ORIGINS", "http://localhost:3000, https://app.example.com")
	t.Setenv("BIZPLAN_TRACER_ENABLED", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Azure.Endpoint != "https://env.openai.azure.com/" {
		t.Errorf("Endpoint = %q", cfg.Azure.Endpoint)
	}
	if cfg.Azure.Deployment != "env-deploy" {
		t.Errorf("Deployment = %q", cfg.Azure.Deployment)
	}
	if cfg.Azure.Capacity != 120 {
		t.Errorf("Capacity = %d", cfg.Azure.Capacity)
	}
	if cfg.Agents.Dir != "/tmp/agents" {
		t.Errorf("Agents.Dir = %q", cfg.Agents.Dir)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://app.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if !cfg.Tracer.Enabled {
		t.Error("Tracer.Enabled should be true")
	}
}

func TestEnvOverrideIgnoresBadCapacity(t *testing.T) {
	t.Setenv("AZURE_OPENAI_CAPACITY", "lots")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Azure.Capacity != 40 {
		t.Errorf("Capacity = %d, want default 40", cfg.Azure.Capacity)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearAzureEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "AZURE_OPENAI_ENDPOINT=\"https://file.openai.azure.com/\"\nAZURE_OPENAI_DEPLOYMENT_NAME=file-deploy\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("azure:\n  env_file: "+envPath+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Azure.Endpoint != "https://file.openai.azure.com/" {
		t.Errorf("Endpoint = %q", cfg.Azure.Endpoint)
	}
	if cfg.Azure.Deployment != "file-deploy" {
		t.Errorf("Deployment = %q", cfg.Azure.Deployment)
	}
}

func TestLoadEnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	clearAzureEnv(t)
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "from-process")
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("AZURE_OPENAI_DEPLOYMENT_NAME=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}

	found, err := LoadEnvFile(envPath)
	if err != nil || !found {
		t.Fatalf("LoadEnvFile = %v, %v", found, err)
	}
	if got := os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME"); got != "from-process" {
		t.Errorf("deployment = %q, want from-process", got)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	found, err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("found should be false for a missing file")
	}
	if found, err := LoadEnvFile(""); found || err != nil {
		t.Errorf("empty path = %v, %v", found, err)
	}
}

func TestRequireAzure(t *testing.T) {
	cfg := Defaults()
	err := cfg.RequireAzure()
	if !errors.Is(err, domain.ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
	var de *domain.DomainError
	if !errors.As(err, &de) || de.Detail != "AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT_NAME" {
		t.Errorf("detail = %+v", de)
	}

	cfg.Azure.Endpoint = "https://x.openai.azure.com/"
	cfg.Azure.Deployment = "gpt-4o"
	if err := cfg.RequireAzure(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
