package builder

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

type gradleBuilder struct {
	name      string
	args      []string
	workspace string
	runner    command.Runner
	log       *slog.Logger
}

func (b *gradleBuilder) gradlew(args ...string) command.Spec {
	return command.Spec{Name: "./gradlew", Args: args, Dir: b.workspace}
}

func (b *gradleBuilder) PreAction(ctx context.Context) error {
	b.log.Info("gradle clean", "builder", b.name, "workspace", b.workspace)
	_, err := b.runner.Run(ctx, b.gradlew("clean"))
	return err
}

func (b *gradleBuilder) Build(ctx context.Context, t *target.Target) error {
	artifact := t.Artifact()
	if artifact == "" {
		return result.Errf(result.BuilderConfig, "%s: gradle targets need an artifact path", t.Name)
	}
	tasks := t.BuildTasks
	if len(tasks) == 0 && t.Params.BuildTarget != "" {
		tasks = []string{t.Params.BuildTarget}
	}
	if len(tasks) == 0 {
		return result.Errf(result.BuilderConfig, "%s: no gradle task to build", t.Name)
	}
	for _, task := range tasks {
		b.log.Info("gradle", "builder", b.name, "target", t.Name, "task", task)
		if _, err := b.runner.Run(ctx, b.gradlew(append([]string{task}, b.args...)...)); err != nil {
			return err
		}
	}
	if filepath.IsAbs(artifact) {
		t.TargetPath = artifact
	} else {
		t.TargetPath = filepath.Join(b.workspace, artifact)
	}
	return nil
}
