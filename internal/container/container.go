// Package container drives one run: build, serial and parallel execution,
// coverage and the run summary.
package container

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/signalnine/crucible/internal/builder"
	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/coverage"
	"github.com/signalnine/crucible/internal/logging"
	"github.com/signalnine/crucible/internal/observer"
	"github.com/signalnine/crucible/internal/report"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

const (
	DefaultKillGrace = 5 * time.Second
	// Running targets are named once at most this many remain.
	runningHintThreshold = 3
)

type Options struct {
	// Kind is the target kind used when a target declares no type.
	Kind        target.Kind
	Environment Environment
	Observers   []observer.Observer
	Layout      result.Layout
	Runner      command.Runner
	Logger      *slog.Logger
	Out         io.Writer
	// SerialOnly queues every target serially regardless of enable_parallel.
	SerialOnly bool
	// SkipPreAction is consulted before builder pre-actions run.
	SkipPreAction func() bool
	// KillGrace is how long terminated targets get before they are killed.
	KillGrace time.Duration
}

type Container struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger
	out  io.Writer

	timeout      time.Duration
	pollInterval time.Duration

	builders *builder.Manager
	coverage coverage.Coverage
	serial   []*target.Target
	parallel []*target.Target
	// prepared is set once the environment may hold resources.
	prepared bool
}

func New(cfg *config.Config, opts Options) *Container {
	if opts.Environment == nil {
		opts.Environment = Host{}
	}
	if opts.Runner == nil {
		opts.Runner = command.Exec{}
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Kind == "" {
		opts.Kind = target.KindNative
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	log := logging.OrDiscard(opts.Logger)
	c := &Container{
		cfg:          cfg,
		opts:         opts,
		log:          log,
		out:          opts.Out,
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
		builders:     builder.NewManager(cfg.Builders, opts.Runner, log),
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = config.DefaultPollInterval
	}
	return c
}

// Targets returns the queued targets, serial queue first.
func (c *Container) Targets() []*target.Target {
	all := make([]*target.Target, 0, len(c.serial)+len(c.parallel))
	all = append(all, c.serial...)
	return append(all, c.parallel...)
}

// BeforeTest resolves coverage, constructs and queues the targets matching
// filter ("all" for every target), prepares the environment and builds the
// serial queue then the parallel queue. Every target is constructed before
// anything is built.
func (c *Container) BeforeTest(ctx context.Context, filter string) error {
	cov, err := coverage.New(c.cfg.Coverage, coverage.Context{Runner: c.opts.Runner, Logger: c.log})
	if err != nil {
		return err
	}
	c.coverage = cov

	selected, err := c.cfg.Select(filter)
	if err != nil {
		return err
	}
	deps := target.Deps{
		Layout:   c.opts.Layout,
		Runner:   c.opts.Runner,
		Logger:   c.log,
		Coverage: coverage.Enabled(cov),
	}
	built := make([]*target.Target, 0, len(selected))
	for _, tc := range selected {
		t, err := target.New(tc, c.opts.Kind, deps)
		if err != nil {
			return err
		}
		built = append(built, t)
	}
	for _, t := range built {
		if !t.Enabled() {
			c.log.Info("target disabled", "target", t.Name)
			continue
		}
		if t.Parallel && !c.opts.SerialOnly {
			c.parallel = append(c.parallel, t)
		} else {
			c.serial = append(c.serial, t)
		}
	}
	if err := c.builders.Check(c.Targets()); err != nil {
		return err
	}

	c.prepared = true
	if err := c.opts.Environment.Prepare(ctx); err != nil {
		return err
	}

	if err := c.builders.PreAction(ctx, c.opts.SkipPreAction); err != nil {
		return err
	}
	for _, t := range c.Targets() {
		if err := c.builders.Build(ctx, t); err != nil {
			return err
		}
		c.opts.Environment.Inject(t)
	}
	c.log.Info("targets built", "serial", len(c.serial), "parallel", len(c.parallel))
	return nil
}

// Test runs the serial queue one target at a time, then the parallel batch.
func (c *Container) Test(ctx context.Context) error {
	if err := c.opts.Environment.Capture(ctx); err != nil {
		return err
	}
	for _, t := range c.serial {
		if err := c.runSerial(ctx, t); err != nil {
			return err
		}
	}
	if len(c.parallel) == 0 {
		return nil
	}
	return c.runParallel(ctx)
}

// AfterTest generates coverage over the targets that ran and tears the
// environment down. Coverage failures are only logged.
func (c *Container) AfterTest(ctx context.Context) error {
	if c.coverage != nil && coverage.Enabled(c.coverage) {
		if c.opts.Environment.CoverageAllowed(ctx) {
			if err := c.coverage.GenReport(ctx, c.Targets()); err != nil {
				c.log.Warn("coverage generation failed", "err", err)
			}
		}
	}
	if c.prepared {
		if err := c.opts.Environment.Teardown(ctx); err != nil {
			c.log.Warn("environment teardown failed", "err", err)
		}
		c.prepared = false
	}
	return nil
}

// Run is BeforeTest, Test and AfterTest. AfterTest always runs.
func (c *Container) Run(ctx context.Context, filter string) error {
	err := c.BeforeTest(ctx, filter)
	if err == nil {
		err = c.Test(ctx)
	}
	c.AfterTest(ctx)
	return err
}

// Summary has one child per queued target, serial queue first.
func (c *Container) Summary() *report.Summary {
	s := report.NewSummary()
	for _, t := range c.Targets() {
		s.AddChild(t.Summary())
	}
	return s
}

func (c *Container) notify(ctx context.Context, t *target.Target) {
	observer.Notify(ctx, c.out, c.opts.Observers, t)
}

func (c *Container) failure(t *target.Target) error {
	if err := t.StartErr(); err != nil {
		return err
	}
	if code, ok := t.ReturnCode(); ok {
		return result.Errf(result.TargetRun, "%s has error with code %d", t.Name, code)
	}
	return result.Errf(result.TargetRun, "%s has error", t.Name)
}
