package observer

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/logging"
	"github.com/signalnine/crucible/internal/target"
)

var backtracePattern = regexp.MustCompile(`#[0-9]+ pc ([0-9a-fA-F]+).*liblynx\.so`)

// AndroidCrashObserver symbolizes native backtrace frames found in the
// device log with addr2line.
type AndroidCrashObserver struct {
	deps CrashDeps
}

func NewAndroidCrashObserver(deps CrashDeps) *AndroidCrashObserver {
	deps.Logger = logging.OrDiscard(deps.Logger)
	return &AndroidCrashObserver{deps: deps}
}

func (*AndroidCrashObserver) Name() string { return "CrashObserver" }

func (o *AndroidCrashObserver) Action(ctx context.Context, t *target.Target) {
	log := o.deps.Logger
	if !t.HasCrash() {
		log.Info("target did not crash, skipping stack check", "target", t.Name)
		return
	}
	symbol := t.Params.Symbol
	if symbol == "" {
		log.Warn("no symbol path configured, skipping stack check", "target", t.Name)
		return
	}
	if _, err := os.Stat(symbol); err != nil {
		log.Warn("symbol file not found, skipping stack check", "target", t.Name, "symbol", symbol)
		return
	}
	data, err := os.ReadFile(o.deps.Layout.DeviceLogPath())
	if err != nil {
		log.Warn("reading device log", "err", err)
		return
	}

	var addrs []string
	seen := make(map[string]bool)
	for _, m := range backtracePattern.FindAllStringSubmatch(string(data), -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			addrs = append(addrs, m[1])
		}
	}

	var b strings.Builder
	for _, addr := range addrs {
		out, err := o.deps.runner().Run(ctx, command.Spec{Name: "addr2line", Args: []string{"-fCe", symbol, addr}})
		if err != nil {
			log.Warn("analysis backtrace error", "err", err)
			return
		}
		fmt.Fprintf(&b, "\n%s---->%s", addr, out)
	}
	fmt.Fprintf(o.deps.Out, "%s crash info:\n%s\n", t.Name, b.String())
}
