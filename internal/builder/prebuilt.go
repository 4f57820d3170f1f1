package builder

import (
	"context"
	"os"
	"path/filepath"

	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

// prebuiltBuilder resolves artifacts that some other process already built.
type prebuiltBuilder struct {
	output string
}

func (b *prebuiltBuilder) PreAction(ctx context.Context) error {
	return nil
}

func (b *prebuiltBuilder) Build(ctx context.Context, t *target.Target) error {
	name := t.Params.BuildTarget
	if name == "" {
		name = t.Name
	}
	path := filepath.Join(b.output, name)
	if _, err := os.Stat(path); err != nil {
		return result.Errf(result.CallCommand, "%s: prebuilt artifact %s not found", t.Name, path)
	}
	t.TargetPath = path
	return nil
}
