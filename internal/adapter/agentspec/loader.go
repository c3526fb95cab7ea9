package agentspec

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bizplan/internal/domain"
	"bizplan/internal/infra/metrics"
)

// Loader reads the agent roster from a directory. It caches nothing: every
// call re-reads the directory.
type Loader struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewLoader creates a Loader. rec may be nil.
func NewLoader(logger *slog.Logger, rec *metrics.Recorder) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger, metrics: rec}
}

// LoadAgentSpecs returns the enabled specs of every *.md file directly under
// dir, ordered by filename. A missing directory or a malformed file is
// logged, never returned.
func (l *Loader) LoadAgentSpecs(ctx context.Context, dir string) []domain.AgentSpec {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("agents directory not found", "dir", dir)
		} else {
			l.logger.Error("read agents directory", "dir", dir, "error", err)
		}
		return []domain.AgentSpec{}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), specFileSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	specs := []domain.AgentSpec{}
	seen := make(map[string]string)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			l.logger.Warn("agent loading interrupted", "dir", dir, "error", err)
			break
		}

		path := filepath.Join(dir, name)
		spec, err := ParseAgentSpec(path)
		if err != nil {
			l.logger.Error("skipping agent spec", "file", path, "error", err)
			l.metrics.IncSpecLoadError()
			continue
		}
		if !spec.Enabled {
			l.logger.Debug("agent disabled", "file", path, "name", spec.Name)
			continue
		}
		if first, dup := seen[spec.Name]; dup {
			l.logger.Warn("duplicate agent name, lookups use the first", "name", spec.Name, "first", first, "file", path)
		} else {
			seen[spec.Name] = path
		}
		specs = append(specs, spec)
	}

	l.logger.Info("agent specs loaded", "dir", dir, "count", len(specs))
	return specs
}
