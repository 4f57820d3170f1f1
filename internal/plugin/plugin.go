// Package plugin assembles a run from configuration: environment, observers,
// target kind and queueing policy per plugin.
package plugin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/signalnine/crucible/internal/builder"
	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/container"
	"github.com/signalnine/crucible/internal/coverage"
	"github.com/signalnine/crucible/internal/device"
	"github.com/signalnine/crucible/internal/logging"
	"github.com/signalnine/crucible/internal/observer"
	"github.com/signalnine/crucible/internal/report"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

type Name string

const (
	NativeUT  Name = "native-ut"
	AndroidUT Name = "android-ut"
)

type Options struct {
	Layout result.Layout
	Runner command.Runner
	Logger *slog.Logger
	Out    io.Writer
	// GOOS selects the crash observer, runtime.GOOS by default.
	GOOS string
}

type Plugin struct {
	name      Name
	layout    result.Layout
	log       *slog.Logger
	container *container.Container
}

// New resolves the configured plugin. Unknown plugins are a configuration
// error.
func New(cfg *config.Config, opts Options) (*Plugin, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	opts.Logger = logging.OrDiscard(opts.Logger)
	crashDeps := observer.CrashDeps{Layout: opts.Layout, Runner: opts.Runner, Out: opts.Out, Logger: opts.Logger}
	copts := container.Options{
		Layout: opts.Layout,
		Runner: opts.Runner,
		Logger: opts.Logger,
		Out:    opts.Out,
	}

	name := Name(cfg.Plugin)
	switch name {
	case NativeUT:
		copts.Kind = target.KindNative
		copts.Environment = container.Host{}
		copts.Observers = []observer.Observer{observer.LogObserver{Out: opts.Out}}
		if crash := observer.NewCrashObserver(opts.GOOS, crashDeps); crash != nil {
			copts.Observers = append(copts.Observers, crash)
		}
		copts.Observers = append(copts.Observers, observer.OwnersObserver{Out: opts.Out})
	case AndroidUT:
		copts.Kind = target.KindAndroid
		copts.Environment = device.New(device.Options{
			Config: cfg.Device,
			Layout: opts.Layout,
			Runner: opts.Runner,
			Logger: opts.Logger,
		})
		copts.Observers = []observer.Observer{
			observer.LogObserver{Out: opts.Out},
			observer.OwnersObserver{Out: opts.Out},
			observer.NewAndroidCrashObserver(crashDeps),
		}
		copts.SerialOnly = true
		clean := cfg.Device.CleanBuild()
		copts.SkipPreAction = func() bool { return !clean }
	default:
		return nil, result.Errf(result.PluginConfig, "unsupported plugin %q", cfg.Plugin)
	}
	return &Plugin{
		name:      name,
		layout:    opts.Layout,
		log:       opts.Logger,
		container: container.New(cfg, copts),
	}, nil
}

func (p *Plugin) Name() Name { return p.name }

func (p *Plugin) Container() *container.Container { return p.container }

// Run executes the targets matching filter and writes the trace-event
// summary, also when the run failed.
func (p *Plugin) Run(ctx context.Context, filter string) error {
	p.log.Info("run started", "plugin", p.name, "filter", filter)
	err := p.container.Run(ctx, filter)

	summary := p.container.Summary()
	summary.Set("plugin", string(p.name))
	if err != nil {
		summary.Set("status", "failure").Set("error", err.Error()).Set("code", result.CodeOf(err).String())
	} else {
		summary.Set("status", "success")
	}
	trace := p.layout.TracePath(string(p.name))
	if cerr := report.NewTraceEventConsumer(trace, string(p.name)).Consume(summary); cerr != nil {
		p.log.Warn("writing trace events failed", "path", trace, "err", cerr)
	} else {
		p.log.Info("trace events written", "path", trace)
	}
	return err
}

// List prints the enabled targets and their owners.
func List(cfg *config.Config, w io.Writer) {
	i := 0
	for _, t := range cfg.Targets {
		if !t.Enabled() {
			continue
		}
		fmt.Fprintf(w, "[%d]: %s  owners:(%s)\n", i, t.Name, strings.Join(t.Owners, ","))
		i++
	}
}

// Check constructs every builder, the coverage generator and every target
// without building or running anything.
func Check(cfg *config.Config) error {
	if _, err := New(cfg, Options{Out: io.Discard, GOOS: "none"}); err != nil {
		return err
	}
	if err := builder.NewManager(cfg.Builders, nil, nil).Construct(); err != nil {
		return err
	}
	cov, err := coverage.New(cfg.Coverage, coverage.Context{})
	if err != nil {
		return err
	}
	kind := target.KindNative
	if Name(cfg.Plugin) == AndroidUT {
		kind = target.KindAndroid
	}
	var targets []*target.Target
	for _, tc := range cfg.Targets {
		t, err := target.New(tc, kind, target.Deps{Coverage: coverage.Enabled(cov)})
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}
	return builder.NewManager(cfg.Builders, nil, nil).Check(targets)
}
