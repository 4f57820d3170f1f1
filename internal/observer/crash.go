package observer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/logging"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

// CrashDeps are shared by the crash observers.
type CrashDeps struct {
	Layout result.Layout
	Runner command.Runner
	Out    io.Writer
	Logger *slog.Logger
}

func (d CrashDeps) runner() command.Runner {
	if d.Runner == nil {
		return command.Exec{}
	}
	return d.Runner
}

// NewCrashObserver returns the post-mortem observer for goos, or nil when
// the platform has none.
func NewCrashObserver(goos string, deps CrashDeps) Observer {
	deps.Logger = logging.OrDiscard(deps.Logger)
	switch goos {
	case "darwin":
		return &DarwinCrashObserver{deps: deps}
	case "linux":
		o := &LinuxCrashObserver{deps: deps}
		o.prepare(context.Background())
		return o
	default:
		return nil
	}
}

// DarwinCrashObserver replays the crashing binary under lldb and prints
// the backtrace.
type DarwinCrashObserver struct {
	deps CrashDeps
}

func (*DarwinCrashObserver) Name() string { return "CrashObserver" }

func (o *DarwinCrashObserver) Action(ctx context.Context, t *target.Target) {
	if !t.HasCrash() {
		o.deps.Logger.Warn("target did not crash, skipping backtrace", "target", t.Name)
		return
	}
	script := o.deps.Layout.DebuggerScriptPath()
	content := fmt.Sprintf("file %s\nprocess launch -- %s\n", t.TargetPath, strings.Join(t.Args, " "))
	if err := os.WriteFile(script, []byte(content), 0o644); err != nil {
		o.deps.Logger.Warn("writing debugger script", "err", err)
		return
	}
	out, err := o.deps.runner().Run(ctx, command.Spec{Name: "lldb", Args: []string{"-s", script, "-o", "bt", "-o", "q"}, Dir: t.Cwd})
	if err != nil {
		o.deps.Logger.Warn("lldb analysis failed", "target", t.Name, "err", err)
	}
	o.deps.Out.Write(out)
}

// LinuxCrashObserver runs lldb on the core file the crashing process left
// in its working directory.
type LinuxCrashObserver struct {
	deps CrashDeps
}

func (*LinuxCrashObserver) Name() string { return "CrashObserver" }

// prepare enables core dumps named core.<pid>. Both steps are best effort.
func (o *LinuxCrashObserver) prepare(ctx context.Context) {
	if err := raiseCoreLimit(); err != nil {
		o.deps.Logger.Warn("raising core file limit", "err", err)
	}
	if _, err := o.deps.runner().Run(ctx, command.Spec{Name: "sysctl", Args: []string{"-w", "kernel.core_pattern=core.%p"}}); err != nil {
		o.deps.Logger.Warn("setting core pattern", "err", err)
	}
}

func (o *LinuxCrashObserver) Action(ctx context.Context, t *target.Target) {
	if !t.HasCrash() {
		return
	}
	core := filepath.Join(t.Cwd, fmt.Sprintf("core.%d", t.Pid()))
	if _, err := os.Stat(core); err != nil {
		o.deps.Logger.Warn("core dump file not found", "path", core)
		return
	}
	out, err := o.deps.runner().Run(ctx, command.Spec{Name: "lldb", Args: []string{"-c", core, "-o", "bt", "-o", "q"}})
	if err != nil {
		o.deps.Logger.Warn("lldb core analysis failed", "target", t.Name, "err", err)
	}
	o.deps.Out.Write(out)
}
