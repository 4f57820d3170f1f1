package builder

import (
	"context"
	"log/slog"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

type Type string

const (
	TypeGN       Type = "gn"
	TypeGradle   Type = "gradle"
	TypePrebuilt Type = "prebuilt"
)

// Builder turns a target into a runnable artifact and sets its TargetPath.
type Builder interface {
	// PreAction runs once per run before any target is built.
	PreAction(ctx context.Context) error
	Build(ctx context.Context, t *target.Target) error
}

// New constructs the builder for one configuration entry.
func New(name string, cfg config.Builder, runner command.Runner, log *slog.Logger) (Builder, error) {
	switch Type(cfg.Type) {
	case TypeGN:
		if cfg.Output == "" {
			return nil, result.Errf(result.BuilderConfig, "builder %q: gn needs an output dir", name)
		}
		return &gnBuilder{name: name, args: cfg.Args, output: cfg.Output, runner: runner, log: log}, nil
	case TypeGradle:
		if cfg.Workspace == "" {
			return nil, result.Errf(result.BuilderConfig, "builder %q: gradle needs a workspace", name)
		}
		return &gradleBuilder{name: name, args: cfg.Args, workspace: cfg.Workspace, runner: runner, log: log}, nil
	case TypePrebuilt:
		if cfg.Output == "" {
			return nil, result.Errf(result.BuilderConfig, "builder %q: prebuilt needs an output dir", name)
		}
		return &prebuiltBuilder{output: cfg.Output}, nil
	default:
		return nil, result.Errf(result.BuilderConfig, "builder %q: unsupported type %q", name, cfg.Type)
	}
}
