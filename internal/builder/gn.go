package builder

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/target"
)

type gnBuilder struct {
	name   string
	args   []string
	output string
	runner command.Runner
	log    *slog.Logger
}

func (b *gnBuilder) PreAction(ctx context.Context) error {
	spec := command.Spec{Name: "gn", Args: []string{"gen", b.output, "--args=" + strings.Join(b.args, " ")}}
	b.log.Info("gn gen", "builder", b.name, "output", b.output)
	_, err := b.runner.Run(ctx, spec)
	return err
}

func (b *gnBuilder) Build(ctx context.Context, t *target.Target) error {
	label := t.Params.BuildTarget
	if label == "" {
		label = t.Name
	}
	b.log.Info("ninja", "builder", b.name, "target", t.Name, "label", label)
	if _, err := b.runner.Run(ctx, command.Spec{Name: "ninja", Args: []string{"-C", b.output, label}}); err != nil {
		return err
	}
	t.TargetPath = filepath.Join(b.output, binaryName(label))
	return nil
}

// binaryName maps a gn label such as //base:base_unittests to the file
// ninja writes into the output dir.
func binaryName(label string) string {
	if i := strings.LastIndexAny(label, ":/"); i >= 0 {
		return label[i+1:]
	}
	return label
}
