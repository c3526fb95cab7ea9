package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"bizplan/internal/adapter/agentspec"
	"bizplan/internal/adapter/llm"
	"bizplan/internal/adapter/search"
	"bizplan/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

// Check is a named health check.
type Check struct {
	Name string
	Fn   func(ctx context.Context, cfg *config.Config) CheckResult
}

const checkTimeout = 30 * time.Second

// doctor carries the state shared between checks. The credential is
// acquired once and reused by the completion check.
type doctor struct {
	cfgPath       string
	cfgErr        error
	newCredential func() (azcore.TokenCredential, error)
	httpClient    *http.Client

	cred    azcore.TokenCredential
	credErr error
}

func newDoctor(cfgPath string, cfgErr error) *doctor {
	return &doctor{
		cfgPath:       cfgPath,
		cfgErr:        cfgErr,
		newCredential: llm.NewCredential,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *doctor) checks() []Check {
	return []Check{
		{Name: "Config file", Fn: d.checkConfigFile},
		{Name: "Azure env file", Fn: checkEnvFile},
		{Name: "Azure settings", Fn: checkAzureSettings},
		{Name: "Azure credential", Fn: d.checkCredential},
		{Name: "Test completion", Fn: d.checkCompletion},
		{Name: "Agents directory", Fn: checkAgentsDir},
		{Name: "Search provider", Fn: d.checkSearchProvider},
	}
}

// runDoctor executes all health checks and reports results.
func runDoctor(ctx context.Context, out io.Writer) error {
	cfgPath := configPath(os.Args[1:])
	cfg, cfgErr := config.Load(cfgPath)
	return newDoctor(cfgPath, cfgErr).run(ctx, cfg, out)
}

func (d *doctor) run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	fmt.Fprintln(out, "bizplan doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range d.checks() {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		result := check.Fn(cctx, cfg)
		cancel()
		result.Name = check.Name

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(out, "\nFix the FAIL issues above before running bizplan.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(out, "\nbizplan should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(out, "\nAll checks passed! bizplan is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusWarn, Message: "cannot check, config not loaded"}
}

func (d *doctor) checkConfigFile(_ context.Context, _ *config.Config) CheckResult {
	if d.cfgErr != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("config error: %v", d.cfgErr),
			Fix:     fmt.Sprintf("Check %s syntax and file permissions (0600)", d.cfgPath),
		}
	}
	if _, err := os.Stat(d.cfgPath); os.IsNotExist(err) {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no config file at %s, using defaults", d.cfgPath),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", d.cfgPath)}
}

func checkEnvFile(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.Azure.EnvFile == "" {
		return CheckResult{Status: StatusPass, Message: "env file disabled, using process environment"}
	}
	if _, err := os.Stat(cfg.Azure.EnvFile); err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s not found, relying on process environment", cfg.Azure.EnvFile),
			Fix:     "Provision the deployment (azd up) or export AZURE_OPENAI_* variables",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("loaded %s", cfg.Azure.EnvFile)}
}

func checkAzureSettings(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if err := cfg.RequireAzure(); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Set AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT_NAME",
		}
	}
	return CheckResult{
		Status: StatusPass,
		Message: fmt.Sprintf("endpoint %s, deployment %s, capacity %dK TPM",
			cfg.Azure.Endpoint, cfg.Azure.Deployment, cfg.Azure.Capacity),
	}
}

func (d *doctor) credential() (azcore.TokenCredential, error) {
	if d.cred == nil && d.credErr == nil {
		d.cred, d.credErr = d.newCredential()
	}
	return d.cred, d.credErr
}

func (d *doctor) checkCredential(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	cred, err := d.credential()
	if err == nil {
		var expires time.Time
		if expires, err = llm.CheckCredential(ctx, cred, cfg.Azure.TokenScope); err == nil {
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("token acquired, expires %s", expires.Format(time.RFC3339)),
			}
		}
		d.credErr = err
	}
	return CheckResult{
		Status:  StatusFail,
		Message: fmt.Sprintf("no token: %v", err),
		Fix:     "Run 'az login' or configure a managed identity",
	}
}

func (d *doctor) checkCompletion(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.RequireAzure() != nil {
		return CheckResult{Status: StatusWarn, Message: "skipped, Azure settings missing"}
	}
	cred, err := d.credential()
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: "skipped, no credential"}
	}
	m, err := llm.NewAzureModel(cfg.Azure, cred, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	res, err := m.Ping(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("completion failed: %v", err),
			Fix:     "Check the deployment name and that the identity has the Cognitive Services OpenAI User role",
		}
	}
	return CheckResult{
		Status: StatusPass,
		Message: fmt.Sprintf("%q (%d prompt + %d completion = %d tokens)",
			strings.TrimSpace(res.Reply), res.PromptTokens, res.CompletionTokens, res.TotalTokens),
	}
}

func checkAgentsDir(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	info, err := os.Stat(cfg.Agents.Dir)
	if err != nil || !info.IsDir() {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not a directory", cfg.Agents.Dir),
			Fix:     "Create the directory and add agent markdown files, or set agents.dir",
		}
	}
	specs := agentspec.NewLoader(nil, nil).LoadAgentSpecs(ctx, cfg.Agents.Dir)
	if len(specs) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no enabled agents in %s, only the orchestrator will answer", cfg.Agents.Dir),
		}
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d enabled: %s", len(specs), strings.Join(names, ", ")),
	}
}

func (d *doctor) checkSearchProvider(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	provider, err := search.NewProvider(cfg.Search, nil)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Set search.provider to duckduckgo, searxng or tavily",
		}
	}
	if cfg.Search.Provider != "searxng" {
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s configured", provider.Name())}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Search.SearXNGURL, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid SearXNG URL: %v", err)}
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("SearXNG not reachable at %s: %v", cfg.Search.SearXNGURL, err),
			Fix:     "Start SearXNG or update search.searxng_url",
		}
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("SearXNG responded with status %d", resp.StatusCode),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("SearXNG reachable at %s", cfg.Search.SearXNGURL)}
}
