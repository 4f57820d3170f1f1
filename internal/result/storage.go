package result

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout places every artifact of a run relative to the project root.
// Artifacts are overwritten by the next invocation.
type Layout struct {
	Root string
}

func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolving root dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return Layout{}, fmt.Errorf("creating root dir: %w", err)
	}
	return Layout{Root: abs}, nil
}

func (l Layout) LogPath(target string) string {
	return filepath.Join(l.Root, target+".log")
}

func (l Layout) DeviceLogPath() string {
	return filepath.Join(l.Root, "device.log")
}

func (l Layout) TracePath(plugin string) string {
	return filepath.Join(l.Root, plugin+"-trace-events.json")
}

func (l Layout) DebuggerScriptPath() string {
	return filepath.Join(l.Root, "command.lldb")
}

// ProfilePath is where an instrumented native binary writes raw profile data.
func (l Layout) ProfilePath(target string) string {
	return filepath.Join(l.Root, target+".profraw")
}

// CoverageDataPath is where a pulled JaCoCo execution file lands.
func (l Layout) CoverageDataPath(target string) string {
	return filepath.Join(l.Root, "coverage_"+target+".ec")
}

func (l Layout) JUnitPath(target string) string {
	return filepath.Join(l.Root, target+"_output.xml")
}
