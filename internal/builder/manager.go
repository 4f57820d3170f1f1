package builder

import (
	"context"
	"log/slog"
	"sort"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/logging"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

// Manager owns the named builders of a run. Builders are constructed on
// PreAction.
type Manager struct {
	configs  map[string]config.Builder
	builders map[string]Builder
	runner   command.Runner
	log      *slog.Logger
}

func NewManager(configs map[string]config.Builder, runner command.Runner, log *slog.Logger) *Manager {
	if runner == nil {
		runner = command.Exec{}
	}
	return &Manager{
		configs:  configs,
		builders: make(map[string]Builder),
		runner:   runner,
		log:      logging.OrDiscard(log),
	}
}

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Construct builds every configured builder without running anything.
func (m *Manager) Construct() error {
	for _, name := range m.names() {
		if _, ok := m.builders[name]; ok {
			continue
		}
		b, err := New(name, m.configs[name], m.runner, m.log)
		if err != nil {
			return err
		}
		m.builders[name] = b
	}
	return nil
}

// PreAction constructs every builder and runs its pre-action once, unless
// skip reports true. The first failure stops the run.
func (m *Manager) PreAction(ctx context.Context, skip func() bool) error {
	if err := m.Construct(); err != nil {
		return err
	}
	if skip != nil && skip() {
		m.log.Info("skipping builder pre-actions")
		return nil
	}
	for _, name := range m.names() {
		if err := m.builders[name].PreAction(ctx); err != nil {
			return result.Wrap(result.CallCommand, err, "pre-action of builder "+name)
		}
	}
	return nil
}

// Build dispatches to the target's builder, "default" when it names none.
func (m *Manager) Build(ctx context.Context, t *target.Target) error {
	name := t.Builder
	if name == "" {
		name = config.DefaultBuilder
	}
	b, ok := m.builders[name]
	if !ok {
		return result.Errf(result.BuilderConfig, "%s: builder %q is not configured", t.Name, name)
	}
	return b.Build(ctx, t)
}

// Check reports targets that reference a builder that is not configured.
func (m *Manager) Check(targets []*target.Target) error {
	for _, t := range targets {
		if _, ok := m.configs[t.Builder]; !ok {
			return result.Errf(result.BuilderConfig, "%s: builder %q is not configured", t.Name, t.Builder)
		}
	}
	return nil
}
