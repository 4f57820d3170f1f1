package target

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/logging"
	"github.com/signalnine/crucible/internal/result"
)

// variant is the kind-specific part of a target.
type variant interface {
	init(t *Target) error
	start(ctx context.Context, t *Target, logf *os.File) (process, error)
	// finish runs after the process exited and the log was scanned.
	finish(ctx context.Context, t *Target) error
	markers() (errs, crashes []string)
	rawCoverage(t *Target) string
}

// Deps are shared by every target of a run.
type Deps struct {
	Layout result.Layout
	Runner command.Runner
	Logger *slog.Logger
	// Coverage is false when the run has no coverage section.
	Coverage bool
}

// New builds a target from its configuration. Targets without owners are
// rejected before anything is built or run.
func New(cfg config.Target, defaultKind Kind, deps Deps) (*Target, error) {
	if len(cfg.Owners) == 0 {
		return nil, result.Errf(result.TargetConfig, "you must add owners for %s, eg `owners: [\"a\", ...]`", cfg.Name)
	}
	if cfg.Retry < 0 {
		return nil, result.Errf(result.TargetConfig, "%s: retry must not be negative", cfg.Name)
	}
	kind := defaultKind
	if cfg.Type != "" {
		kind = Kind(cfg.Type)
	}
	var v variant
	switch kind {
	case KindNative:
		v = &nativeVariant{}
	case KindFuzzer:
		v = &fuzzerVariant{}
	case KindDocker:
		v = &dockerVariant{}
	case KindAndroid:
		v = &androidVariant{}
	case KindAndroidApplication:
		v = &androidVariant{withApp: true}
	default:
		return nil, result.Errf(result.TargetConfig, "%s: unsupported target type %q", cfg.Name, kind)
	}

	runner := deps.Runner
	if runner == nil {
		runner = command.Exec{}
	}
	cwd := cfg.Cwd
	if cwd == "" {
		cwd = "."
	}
	t := &Target{
		Name:       cfg.Name,
		Kind:       kind,
		Params:     cfg,
		Owners:     cfg.Owners,
		Builder:    cfg.BuilderName(),
		Args:       cfg.Args,
		Cwd:        cwd,
		Env:        envList(cfg.Env),
		Coverage:   deps.Coverage && cfg.CoverageEnabled(),
		Parallel:   cfg.EnableParallel,
		Retry:      cfg.Retry,
		LogFile:    deps.Layout.LogPath(cfg.Name),
		GlobalInfo: make(map[string]any),
		layout:     deps.Layout,
		runner:     runner,
		log:        logging.OrDiscard(deps.Logger),
		variant:    v,
		exitCode:   exitUnknown,
	}
	if err := v.init(t); err != nil {
		return nil, err
	}
	return t, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
