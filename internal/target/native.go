package target

import (
	"context"
	"os"

	"github.com/signalnine/crucible/internal/result"
)

// nativeVariant runs a host test binary.
type nativeVariant struct{}

func (nativeVariant) init(t *Target) error {
	return nil
}

func (nativeVariant) start(ctx context.Context, t *Target, logf *os.File) (process, error) {
	if t.TargetPath == "" {
		return nil, result.Errf(result.TargetRun, "%s has not been built", t.Name)
	}
	p, err := startLocal(t.TargetPath, t.Args, t.Cwd, profileEnv(t), logf)
	if err != nil {
		return nil, result.Wrap(result.TargetRun, err, "starting "+t.Name)
	}
	return p, nil
}

func (nativeVariant) finish(ctx context.Context, t *Target) error {
	return nil
}

func (nativeVariant) markers() (errs, crashes []string) {
	return []string{"FAILURES!!!"}, nil
}

func (nativeVariant) rawCoverage(t *Target) string {
	return t.layout.ProfilePath(t.Name)
}

// profileEnv points an instrumented binary at its raw profile file.
func profileEnv(t *Target) []string {
	if !t.Coverage {
		return t.Env
	}
	return append(append([]string(nil), t.Env...), "LLVM_PROFILE_FILE="+t.layout.ProfilePath(t.Name))
}
