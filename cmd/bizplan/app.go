package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"

	"bizplan/internal/adapter/agentrt"
	"bizplan/internal/adapter/agentspec"
	"bizplan/internal/adapter/llm"
	"bizplan/internal/adapter/search"
	"bizplan/internal/domain"
	"bizplan/internal/infra/config"
	"bizplan/internal/infra/logger"
	"bizplan/internal/infra/metrics"
	"bizplan/internal/infra/tracer"
	"bizplan/internal/usecase"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Recorder
	search  *search.Tool
	loader  *agentspec.Loader
	// chat is nil unless the app was built with the model.
	chat    *usecase.ChatService
	closers []func()
}

type appOptions struct {
	withModel bool
	// cli sends logs to stderr and hides info records so they do not
	// interleave with rendered output.
	cli bool
	// forceStderr keeps stdout free for a protocol stream.
	forceStderr bool
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath(os.Args[1:]))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.withModel {
		if err := cfg.RequireAzure(); err != nil {
			return nil, err
		}
	}
	if opts.cli || opts.forceStderr {
		if cfg.Logger.Output == "" || cfg.Logger.Output == "stdout" {
			cfg.Logger.Output = "stderr"
		}
	}
	if opts.cli && cfg.Logger.Level == "info" {
		cfg.Logger.Level = "warn"
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	a.closers = append(a.closers, func() { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() { _ = tracerShutdown(context.Background()) })

	provider, err := search.NewProvider(cfg.Search, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("search: %w", err)
	}
	a.search = search.NewTool(provider, search.Options{
		MaxAttempts:    cfg.Search.MaxAttempts,
		InitialBackoff: cfg.Search.InitialBackoff,
		MaxBackoff:     cfg.Search.MaxBackoff,
		Logger:         log,
		Metrics:        a.metrics,
	})
	a.loader = agentspec.NewLoader(log, a.metrics)

	if opts.withModel {
		if err := a.wireChat(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) wireChat() error {
	cred, err := llm.NewCredential()
	if err != nil {
		return fmt.Errorf("azure credential: %w", err)
	}
	azure, err := llm.NewAzureModel(a.cfg.Azure, cred, a.log)
	if err != nil {
		return fmt.Errorf("azure model: %w", err)
	}
	var m model.LLM = azure
	if a.cfg.CircuitBreaker.Enabled {
		m = llm.NewBreakerModel(azure, a.cfg.CircuitBreaker, a.log)
	}

	searchTool, err := search.NewADKTool(a.search)
	if err != nil {
		return fmt.Errorf("search tool: %w", err)
	}
	prompt, err := agentrt.LoadOrchestratorPrompt(a.cfg.Agents.OrchestratorPromptFile)
	if err != nil {
		return err
	}

	factory := agentrt.NewFactory(m, []tool.Tool{searchTool}, prompt, a.log)
	a.chat = usecase.NewChatService(a.loader, factory, agentrt.NewInvoker(a.log), usecase.ChatConfig{
		AgentsDir:     a.cfg.Agents.Dir,
		InvokeTimeout: a.cfg.Agents.InvokeTimeout,
	}, a.log, a.metrics)

	a.log.Info("model wired",
		"endpoint", a.cfg.Azure.Endpoint,
		"deployment", a.cfg.Azure.Deployment,
		"capacity", a.cfg.Azure.Capacity,
		"search_provider", a.search.ProviderName(),
		"circuit_breaker", a.cfg.CircuitBreaker.Enabled,
	)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// dirRoster lists the enabled agents in one directory.
type dirRoster struct {
	loader *agentspec.Loader
	dir    string
}

func (r dirRoster) Agents(ctx context.Context) []domain.AgentSpec {
	return r.loader.LoadAgentSpecs(ctx, r.dir)
}
