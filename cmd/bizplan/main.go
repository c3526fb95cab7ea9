package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd, args := splitCommand(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "help", "--help", "-h":
		showUsage()
		return
	case "version", "--version":
		fmt.Printf("bizplan %s\n", version)
		return
	case "serve":
		err = runServe(ctx)
	case "examples":
		err = runExamples(ctx)
	case "chat":
		err = runChat(ctx, args)
	case "agents":
		err = runAgents(ctx)
	case "mcp":
		err = runMCP(ctx)
	case "doctor":
		if err := runDoctor(ctx, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'bizplan --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// splitCommand returns the subcommand, defaulting to serve, and its
// remaining arguments. Leading flags belong to serve.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 || (strings.HasPrefix(args[0], "-") && !isHelpOrVersion(args[0])) {
		return "serve", args
	}
	return args[0], args[1:]
}

func isHelpOrVersion(arg string) bool {
	switch arg {
	case "-h", "--help", "--version":
		return true
	}
	return false
}

// configPath resolves --config, then BIZPLAN_CONFIG, then ./config.yaml.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	if p := os.Getenv("BIZPLAN_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func showUsage() {
	fmt.Println(`bizplan - business-planning deep agents on Azure OpenAI

USAGE:
    bizplan [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the HTTP API (default)
    examples    Run the example business-planning queries
    chat        Ask one question: bizplan chat [--agent NAME] MESSAGE
    agents      List the enabled specialist agents
    doctor      Check configuration, credentials and connectivity
    mcp         Serve internet_search and list_agents over MCP stdio
    version     Print the version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file (default: ./config.yaml, or BIZPLAN_CONFIG)

CONFIGURATION:
    Azure settings come from .azure/deepagent/.env or the environment:
      AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT_NAME,
      AZURE_OPENAI_CAPACITY, AZURE_OPENAI_API_VERSION
    BIZPLAN_* variables override config.yaml.

EXAMPLES:
    bizplan                                   # HTTP API on :5001
    bizplan chat --agent financial-analysis "Compute CoCA for ..."
    bizplan examples
    bizplan doctor`)
}
