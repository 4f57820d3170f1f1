package result_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/crucible/internal/result"
)

func TestNewLayoutCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "out")
	layout, err := result.NewLayout(root)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	if _, err := os.Stat(layout.Root); err != nil {
		t.Errorf("root not created: %v", err)
	}
	if !filepath.IsAbs(layout.Root) {
		t.Errorf("root %q is not absolute", layout.Root)
	}
}

func TestLayoutPaths(t *testing.T) {
	l := result.Layout{Root: "/work"}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"log", l.LogPath("unit_a"), "/work/unit_a.log"},
		{"device log", l.DeviceLogPath(), "/work/device.log"},
		{"trace", l.TracePath("native-ut"), "/work/native-ut-trace-events.json"},
		{"debugger script", l.DebuggerScriptPath(), "/work/command.lldb"},
		{"profile", l.ProfilePath("unit_a"), "/work/unit_a.profraw"},
		{"coverage data", l.CoverageDataPath("ui"), "/work/coverage_ui.ec"},
		{"junit", l.JUnitPath("ui"), "/work/ui_output.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
