package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"bizplan/internal/adapter/httpapi"
	"bizplan/internal/adapter/mcpserver"
	"bizplan/internal/adapter/tui/chat"
	"bizplan/internal/adapter/tui/theme"
	"bizplan/internal/adapter/tui/uxerror"
	"bizplan/internal/domain"
	"bizplan/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context) error {
	a, err := newApp(ctx, appOptions{withModel: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpapi.New(a.cfg.Server, a.chat, httpapi.HealthInfo{
		AzureEndpoint: a.cfg.Azure.Endpoint,
		Deployment:    a.cfg.Azure.Deployment,
		Capacity:      a.cfg.Azure.Capacity,
	}, a.metrics, a.log)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// runExamples sends each walkthrough scenario to the orchestrator. A failed
// scenario is reported and the next one still runs.
func runExamples(ctx context.Context) error {
	a, err := newApp(ctx, appOptions{withModel: true, cli: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := os.Stdout
	var failed int
	for i, sc := range usecase.Scenarios() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintln(out, chat.Banner(fmt.Sprintf("Example %d: %s", i+1, sc.Title)))
		fmt.Fprintln(out, theme.Query.Render(sc.Query))
		fmt.Fprintln(out)

		_, err := chat.Run(ctx, streamFor(a.chat, sc.Query, ""), chat.Options{
			Output: out,
			Plain:  !isTerminal(out),
		})
		if err != nil {
			failed++
			fmt.Fprintln(out, uxerror.Humanize(err).Render())
		}
		fmt.Fprintln(out)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d examples failed", failed, len(usecase.Scenarios()))
	}
	return nil
}

type chatFlags struct {
	agent   string
	plain   bool
	message string
}

func parseChatFlags(args []string, stderr io.Writer) (chatFlags, error) {
	var f chatFlags
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.agent, "agent", "", "specialist agent name (default: orchestrator)")
	fs.BoolVar(&f.plain, "plain", false, "print status lines instead of a spinner")
	fs.String("config", "", "config file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: bizplan chat [--agent NAME] [--plain] MESSAGE")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	f.message = strings.TrimSpace(strings.Join(fs.Args(), " "))
	if f.message == "" {
		fs.Usage()
		return f, fmt.Errorf("a message is required: %w", domain.ErrInvalidInput)
	}
	return f, nil
}

func runChat(ctx context.Context, args []string) error {
	f, err := parseChatFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	a, err := newApp(ctx, appOptions{withModel: true, cli: true})
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = chat.Run(ctx, streamFor(a.chat, f.message, f.agent), chat.Options{
		Output: os.Stdout,
		Plain:  f.plain || !isTerminal(os.Stdout),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, uxerror.Humanize(err).Render())
		return err
	}
	return nil
}

func runAgents(ctx context.Context) error {
	a, err := newApp(ctx, appOptions{cli: true})
	if err != nil {
		return err
	}
	defer a.Close()

	printRoster(os.Stdout, dirRoster{loader: a.loader, dir: a.cfg.Agents.Dir}.Agents(ctx), a.cfg.Agents.Dir)
	return nil
}

func printRoster(w io.Writer, specs []domain.AgentSpec, dir string) {
	if len(specs) == 0 {
		fmt.Fprintf(w, "No enabled agents in %s\n", dir)
		return
	}
	for _, s := range specs {
		fmt.Fprintf(w, "%s %s\n", theme.AgentLabel.Render(s.Name), theme.TextMuted.Render("("+s.DisplayName()+")"))
		if s.Description != "" {
			fmt.Fprintf(w, "    %s\n", s.Description)
		}
	}
}

func runMCP(ctx context.Context) error {
	a, err := newApp(ctx, appOptions{forceStderr: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcpserver.New(version, a.search, dirRoster{loader: a.loader, dir: a.cfg.Agents.Dir}, a.log)
	err = srv.Serve(ctx, os.Stdin, os.Stdout, os.Stderr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func streamFor(svc *usecase.ChatService, message, agentName string) chat.StreamFunc {
	return func(ctx context.Context, emit func(domain.ChatEvent)) (domain.ChatResult, error) {
		return svc.Stream(ctx, message, agentName, emit)
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
