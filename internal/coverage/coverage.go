package coverage

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/logging"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

type Type string

const (
	TypeLLVM   Type = "llvm"
	TypeJaCoCo Type = "jacoco"
)

// Coverage produces a report over the targets that ran.
type Coverage interface {
	GenReport(ctx context.Context, targets []*target.Target) error
}

// Context carries what a coverage generator needs for one run.
type Context struct {
	Runner  command.Runner
	Logger  *slog.Logger
	Workers int
}

// New resolves the configured coverage type. A nil configuration disables
// coverage.
func New(cfg *config.Coverage, rc Context) (Coverage, error) {
	if cfg == nil {
		return Noop{}, nil
	}
	if rc.Runner == nil {
		rc.Runner = command.Exec{}
	}
	rc.Logger = logging.OrDiscard(rc.Logger)
	if rc.Workers < 1 {
		rc.Workers = runtime.NumCPU()
	}
	if cfg.Output == "" {
		return nil, result.Errf(result.CoverageConfig, "coverage output dir is required")
	}
	switch Type(cfg.Type) {
	case TypeLLVM:
		return &LLVM{output: cfg.Output, ignores: cfg.Ignores, rc: rc}, nil
	case TypeJaCoCo:
		if cfg.JacocoCLI == "" {
			return nil, result.Errf(result.CoverageConfig, "jacoco coverage needs jacoco_cli")
		}
		return &JaCoCo{output: cfg.Output, cli: cfg.JacocoCLI, classFiles: cfg.ClassFiles, sourceFiles: cfg.SourceFiles, rc: rc}, nil
	default:
		return nil, result.Errf(result.CoverageConfig, "unsupported coverage type %q", cfg.Type)
	}
}

// Enabled reports whether c produces anything.
func Enabled(c Coverage) bool {
	_, noop := c.(Noop)
	return !noop
}

type Noop struct{}

func (Noop) GenReport(ctx context.Context, targets []*target.Target) error {
	return nil
}

// usable keeps targets that finished cleanly and left raw data behind.
func usable(log *slog.Logger, targets []*target.Target) []*target.Target {
	var out []*target.Target
	for _, t := range targets {
		if !t.Started() || t.HasError() {
			log.Debug("skipping coverage", "target", t.Name, "status", t.Status())
			continue
		}
		if t.CoverageRawData() == "" {
			log.Debug("no coverage data", "target", t.Name)
			continue
		}
		out = append(out, t)
	}
	return out
}

func generateErr(err error, msg string) error {
	return &result.Error{Code: result.CoverageGenerate, Message: msg, Cause: err}
}
