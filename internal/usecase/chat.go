// Package usecase holds the chat workflow shared by the HTTP API, the CLI
// and the MCP server.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/adk/agent"

	"bizplan/internal/domain"
	"bizplan/internal/infra/metrics"
	"bizplan/internal/infra/middleware"
	"bizplan/internal/infra/tracer"
)

// Status messages emitted by Stream, in order.
const (
	StatusInitializing = "Initializing agent..."
	StatusThinking     = "Agent is thinking and planning..."
)

// UnknownAgentLabel is the metrics label for requests naming no roster agent.
const UnknownAgentLabel = "unknown"

// SpecLoader supplies the current agent roster.
type SpecLoader interface {
	LoadAgentSpecs(ctx context.Context, dir string) []domain.AgentSpec
}

// AgentFactory builds runnable agents.
type AgentFactory interface {
	CreateAgentFromSpec(spec domain.AgentSpec) (agent.Agent, error)
	CreateOrchestrator(roster []domain.AgentSpec) (agent.Agent, error)
}

// AgentInvoker runs an agent on one message and returns its final text.
type AgentInvoker interface {
	Invoke(ctx context.Context, a agent.Agent, message string, onProgress func(domain.AgentProgress)) (string, error)
}

// ChatConfig configures a ChatService.
type ChatConfig struct {
	AgentsDir     string
	InvokeTimeout time.Duration
}

// ChatService builds a fresh agent per request and relays its answer.
type ChatService struct {
	loader  SpecLoader
	factory AgentFactory
	invoker AgentInvoker
	cfg     ChatConfig
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewChatService creates a ChatService. rec may be nil.
func NewChatService(loader SpecLoader, factory AgentFactory, invoker AgentInvoker, cfg ChatConfig, logger *slog.Logger, rec *metrics.Recorder) *ChatService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ChatService{
		loader:  loader,
		factory: factory,
		invoker: invoker,
		cfg:     cfg,
		logger:  logger,
		metrics: rec,
	}
}

// Agents returns the enabled roster, re-read from disk.
func (s *ChatService) Agents(ctx context.Context) []domain.AgentSpec {
	return s.loader.LoadAgentSpecs(ctx, s.cfg.AgentsDir)
}

// Chat answers message with the named agent, or the orchestrator when
// agentName is empty.
func (s *ChatService) Chat(ctx context.Context, message, agentName string) (domain.ChatResult, error) {
	return s.run(ctx, "ChatService.Chat", message, agentName, nil)
}

// Stream is Chat with progress. emit receives status frames, then exactly
// one response or error frame.
func (s *ChatService) Stream(ctx context.Context, message, agentName string, emit func(domain.ChatEvent)) (domain.ChatResult, error) {
	res, err := s.run(ctx, "ChatService.Stream", message, agentName, emit)
	if err != nil {
		emit(domain.ChatEvent{Type: domain.ChatEventError, Error: PublicError(err)})
		return res, err
	}
	emit(domain.ChatEvent{Type: domain.ChatEventResponse, Response: res.Response, AgentUsed: res.AgentUsed})
	return res, nil
}

func (s *ChatService) run(ctx context.Context, op, message, agentName string, emit func(domain.ChatEvent)) (domain.ChatResult, error) {
	status := func(msg string) {
		if emit != nil {
			emit(domain.StatusEvent(msg))
		}
	}

	message = strings.TrimSpace(message)
	agentName = strings.TrimSpace(agentName)
	if message == "" {
		return domain.ChatResult{}, domain.NewDomainError(op, domain.ErrInvalidInput, "message is required")
	}

	agentUsed := agentName
	if agentUsed == "" {
		agentUsed = domain.OrchestratorName
	}

	reqID := middleware.RequestIDFrom(ctx)
	if reqID == "" {
		reqID = middleware.NewRequestID()
		ctx = middleware.WithRequestID(ctx, reqID)
	}
	logger := s.logger.With("request_id", reqID, "agent", agentUsed)

	ctx, span := tracer.StartSpan(ctx, "chat")
	defer span.End()

	start := time.Now()
	response, label, err := s.invoke(ctx, op, message, agentName, status, logger)
	elapsed := time.Since(start)
	span.SetAttributes(tracer.StringAttr("chat.agent", label), tracer.DurationAttr("chat.duration_ms", elapsed))
	s.metrics.ObserveChat(label, err, elapsed)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Error("chat failed", "duration", elapsed, "error", err)
		return domain.ChatResult{}, err
	}
	tracer.SetOK(span)
	logger.Info("chat completed", "duration", elapsed, "response_len", len(response))
	return domain.ChatResult{Response: response, AgentUsed: agentUsed}, nil
}

// invoke also returns the agent label used for metrics and tracing. It is a
// roster name, the orchestrator, or UnknownAgentLabel, never raw caller input.
func (s *ChatService) invoke(ctx context.Context, op, message, agentName string, status func(string), logger *slog.Logger) (string, string, error) {
	status(StatusInitializing)
	specs := s.loader.LoadAgentSpecs(ctx, s.cfg.AgentsDir)

	var (
		a     agent.Agent
		err   error
		label = domain.OrchestratorName
	)
	if agentName != "" {
		spec, ok := domain.FindAgentSpec(specs, agentName)
		if !ok {
			return "", UnknownAgentLabel, domain.NewDomainError(op, domain.ErrAgentNotFound, agentName)
		}
		label = spec.Name
		status(fmt.Sprintf("Creating %s...", spec.DisplayName()))
		a, err = s.factory.CreateAgentFromSpec(spec)
	} else {
		status("Creating orchestrator...")
		a, err = s.factory.CreateOrchestrator(specs)
	}
	if err != nil {
		return "", label, domain.WrapOp(op, err)
	}

	status(StatusThinking)
	logger.Info("agent invoked", "message_len", len(message))

	if s.cfg.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.InvokeTimeout)
		defer cancel()
	}

	response, err := s.invoker.Invoke(ctx, a, message, func(p domain.AgentProgress) {
		logger.Debug("agent progress", "author", p.Agent, "tool", p.ToolCall, "transfer_to", p.TransferTo)
		if msg := progressMessage(p); msg != "" {
			status(msg)
		}
	})
	if err != nil {
		return "", label, domain.WrapOp(op, err)
	}
	return response, label, nil
}

func progressMessage(p domain.AgentProgress) string {
	switch {
	case p.TransferTo != "":
		return fmt.Sprintf("Delegating to %s...", p.TransferTo)
	case p.ToolCall == "internet_search":
		return fmt.Sprintf("%s is searching the web...", p.Agent)
	case p.ToolCall != "":
		return fmt.Sprintf("%s is using %s...", p.Agent, p.ToolCall)
	}
	return ""
}

// PublicError renders err for API clients.
func PublicError(err error) string {
	var de *domain.DomainError
	switch {
	case errors.Is(err, domain.ErrAgentNotFound) && errors.As(err, &de):
		return fmt.Sprintf("Agent %s not found", de.Detail)
	case errors.Is(err, domain.ErrInvalidInput):
		return "Message is required"
	case errors.Is(err, domain.ErrCircuitOpen):
		return "The model endpoint is temporarily unavailable, try again later"
	case errors.Is(err, context.DeadlineExceeded):
		return "The agent did not finish in time"
	}
	return err.Error()
}
