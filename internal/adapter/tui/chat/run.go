package chat

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"bizplan/internal/adapter/tui/theme"
	"bizplan/internal/domain"
)

// StreamFunc runs one chat request, reporting progress through emit.
type StreamFunc func(ctx context.Context, emit func(domain.ChatEvent)) (domain.ChatResult, error)

// Options controls how Run draws.
type Options struct {
	Output io.Writer
	// Plain prints status lines instead of animating, for pipes and logs.
	Plain bool
	Width int
}

// Run executes stream while showing progress, then prints the rendered
// answer. It returns the stream's result.
func Run(ctx context.Context, stream StreamFunc, opts Options) (domain.ChatResult, error) {
	if opts.Width == 0 {
		opts.Width = theme.MaxContentWidth
	}
	var (
		res domain.ChatResult
		err error
	)
	if opts.Plain {
		res, err = runPlain(ctx, stream, opts.Output)
	} else {
		res, err = runInteractive(ctx, stream, opts.Output)
	}
	if err != nil {
		return res, err
	}
	fmt.Fprintln(opts.Output, RenderResult(res, opts.Width))
	return res, nil
}

func runPlain(ctx context.Context, stream StreamFunc, out io.Writer) (domain.ChatResult, error) {
	return stream(ctx, func(ev domain.ChatEvent) {
		if ev.Type == domain.ChatEventStatus {
			fmt.Fprintf(out, "%s %s\n", theme.SymbolBullet, ev.Message)
		}
	})
}

func runInteractive(ctx context.Context, stream StreamFunc, out io.Writer) (domain.ChatResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var program *tea.Program
	start := func() tea.Msg {
		res, err := stream(ctx, func(ev domain.ChatEvent) {
			if ev.Type == domain.ChatEventStatus {
				program.Send(StatusMsg{Text: ev.Message})
			}
		})
		return DoneMsg{Result: res, Err: err}
	}

	program = tea.NewProgram(NewModel(start, cancel), tea.WithOutput(out), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return domain.ChatResult{}, fmt.Errorf("run progress view: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return domain.ChatResult{}, ctx.Err()
	}
	return m.Result()
}
