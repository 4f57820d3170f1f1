package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/crucible/internal/result"
)

const defaultFuzzTime = 60 * time.Second

// fuzzerVariant runs a libFuzzer binary for a bounded time over a corpus.
type fuzzerVariant struct {
	maxTotalTime time.Duration
}

func (f *fuzzerVariant) init(t *Target) error {
	f.maxTotalTime = t.Params.MaxTotalTime
	if f.maxTotalTime <= 0 {
		f.maxTotalTime = defaultFuzzTime
	}
	return nil
}

func (f *fuzzerVariant) args(t *Target) []string {
	args := append([]string(nil), t.Args...)
	args = append(args, fmt.Sprintf("-max_total_time=%d", int(f.maxTotalTime.Seconds())))
	if t.Params.Corpus != "" {
		args = append(args, t.Params.Corpus)
	}
	return args
}

func (f *fuzzerVariant) start(ctx context.Context, t *Target, logf *os.File) (process, error) {
	if t.TargetPath == "" {
		return nil, result.Errf(result.TargetRun, "%s has not been built", t.Name)
	}
	if t.Params.Corpus != "" {
		dir := t.Params.Corpus
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(t.Cwd, dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, result.Wrap(result.TargetRun, err, "creating corpus for "+t.Name)
		}
	}
	p, err := startLocal(t.TargetPath, f.args(t), t.Cwd, profileEnv(t), logf)
	if err != nil {
		return nil, result.Wrap(result.TargetRun, err, "starting "+t.Name)
	}
	return p, nil
}

func (f *fuzzerVariant) finish(ctx context.Context, t *Target) error {
	return nil
}

func (f *fuzzerVariant) markers() (errs, crashes []string) {
	return []string{"ERROR: libFuzzer", "SUMMARY: AddressSanitizer"},
		[]string{"deadly signal", "ERROR: AddressSanitizer"}
}

func (f *fuzzerVariant) rawCoverage(t *Target) string {
	return t.layout.ProfilePath(t.Name)
}
