// Package mcpserver exposes the search tool and the agent roster to MCP
// clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"bizplan/internal/adapter/search"
	"bizplan/internal/domain"
)

const serverName = "bizplan"

// Searcher runs one web search and renders the result text.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, mode domain.SearchMode) string
}

// Roster lists the enabled agents.
type Roster interface {
	Agents(ctx context.Context) []domain.AgentSpec
}

// Server wraps an MCP server with the bizplan tools registered.
type Server struct {
	mcp    *server.MCPServer
	search Searcher
	roster Roster
	logger *slog.Logger
}

// New registers internet_search and list_agents on a new MCP server.
func New(version string, searcher Searcher, roster Roster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		mcp:    server.NewMCPServer(serverName, version, server.WithToolCapabilities(true)),
		search: searcher,
		roster: roster,
		logger: logger,
	}

	s.mcp.AddTool(mcp.NewTool(search.ToolName,
		mcp.WithDescription(search.ToolDescription),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return, default 5"),
			mcp.Min(1),
			mcp.Max(20),
		),
		mcp.WithString("topic",
			mcp.Description("Search topic: general or news"),
			mcp.Enum("general", "news"),
		),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool("list_agents",
		mcp.WithDescription("List the specialist business-planning agents that are currently enabled."),
	), s.handleListAgents)

	return s
}

// Serve speaks MCP on in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer, errLog io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(errLog, "mcp: ", log.LstdFlags))
	s.logger.Info("mcp server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	args, err := search.ParseArgs(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Debug("mcp search", "query", args.Query, "max_results", args.MaxResults, "topic", args.Topic)
	return mcp.NewToolResultText(s.search.Search(ctx, args.Query, args.MaxResults, args.Mode())), nil
}

func (s *Server) handleListAgents(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agents := s.roster.Agents(ctx)
	if len(agents) == 0 {
		return mcp.NewToolResultText("No agents are enabled."), nil
	}
	var b strings.Builder
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s (%s): %s\n", a.Name, a.DisplayName(), a.Description)
	}
	return mcp.NewToolResultText(b.String()), nil
}
