package coverage_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/coverage"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

const exportJSON = `{"data":[{"totals":{
  "lines":{"count":200,"covered":150,"percent":75},
  "functions":{"count":20,"covered":18,"percent":90},
  "regions":{"count":10,"covered":5,"percent":50},
  "branches":{"count":4,"covered":1,"percent":25}}}],
  "type":"llvm.coverage.json.export","version":"2.0.1"}`

// ranTarget runs a shell target that writes its raw profile (when write is
// set) and exits with code.
func ranTarget(t *testing.T, layout result.Layout, name string, write bool, code int) *target.Target {
	t.Helper()
	tg, err := target.New(config.Target{Name: name, Owners: []string{"alice"}}, target.KindNative,
		target.Deps{Layout: layout, Coverage: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	script := "exit " + strconv.Itoa(code)
	if write {
		script = `printf raw > "$LLVM_PROFILE_FILE"; ` + script
	}
	tg.TargetPath = "/bin/sh"
	tg.Args = []string{"-c", script}
	tg.Cwd = t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tg.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := tg.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return tg
}

func newLayout(t *testing.T) result.Layout {
	t.Helper()
	layout, err := result.NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	return layout
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Coverage
		code    result.Code
		enabled bool
	}{
		{"absent", nil, result.OK, false},
		{"llvm", &config.Coverage{Type: "llvm", Output: "out"}, result.OK, true},
		{"jacoco", &config.Coverage{Type: "jacoco", Output: "out", JacocoCLI: "cli.jar"}, result.OK, true},
		{"jacoco without cli", &config.Coverage{Type: "jacoco", Output: "out"}, result.CoverageConfig, false},
		{"missing output", &config.Coverage{Type: "llvm"}, result.CoverageConfig, false},
		{"unknown", &config.Coverage{Type: "gcov", Output: "out"}, result.CoverageConfig, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := coverage.New(tt.cfg, coverage.Context{})
			if result.CodeOf(err) != tt.code {
				t.Fatalf("code: got %v, want %v (err %v)", result.CodeOf(err), tt.code, err)
			}
			if err == nil && coverage.Enabled(c) != tt.enabled {
				t.Errorf("Enabled: got %v, want %v", coverage.Enabled(c), tt.enabled)
			}
		})
	}
}

func TestLLVMEmptyInput(t *testing.T) {
	rec := &command.Recorder{}
	out := filepath.Join(t.TempDir(), "cov")
	c, err := coverage.New(&config.Coverage{Type: "llvm", Output: out}, coverage.Context{Runner: rec})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.GenReport(context.Background(), nil); err != nil {
		t.Fatalf("GenReport: %v", err)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("expected no tool calls, got %v", rec.Commands())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output dir should not be created")
	}
}

func TestLLVMGenReport(t *testing.T) {
	layout := newLayout(t)
	good := ranTarget(t, layout, "good", true, 0)
	failed := ranTarget(t, layout, "failed", true, 1)
	empty := ranTarget(t, layout, "empty", false, 0)
	other := ranTarget(t, layout, "other", true, 0)

	rec := &command.Recorder{Handle: func(spec command.Spec) ([]byte, error) {
		if spec.Name == "llvm-cov" && spec.Args[0] == "export" {
			return []byte(exportJSON), nil
		}
		return nil, nil
	}}
	out := filepath.Join(t.TempDir(), "cov")
	c, err := coverage.New(&config.Coverage{Type: "llvm", Output: out, Ignores: []string{"third_party/*"}},
		coverage.Context{Runner: rec, Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.GenReport(context.Background(), []*target.Target{good, failed, empty, other}); err != nil {
		t.Fatalf("GenReport: %v", err)
	}

	var perTarget int
	var final, show, export string
	for _, cmd := range rec.Commands() {
		switch {
		case strings.Contains(cmd, "merged.profdata") && strings.HasPrefix(cmd, "llvm-profdata"):
			final = cmd
		case strings.HasPrefix(cmd, "llvm-profdata merge -sparse"):
			perTarget++
			if strings.Contains(cmd, "failed") || strings.Contains(cmd, "empty") {
				t.Errorf("unexpected merge: %s", cmd)
			}
		case strings.HasPrefix(cmd, "llvm-cov show"):
			show = cmd
		case strings.HasPrefix(cmd, "llvm-cov export"):
			export = cmd
		}
	}
	if perTarget != 2 {
		t.Errorf("per-target merges: got %d, want 2", perTarget)
	}
	goodProf := filepath.Join(out, "good.profdata")
	otherProf := filepath.Join(out, "other.profdata")
	if !strings.Contains(final, goodProf+" "+otherProf) {
		t.Errorf("final merge should keep target order: %s", final)
	}
	for _, cmd := range []string{show, export} {
		if !strings.Contains(cmd, "-ignore-filename-regex=third_party/.*") {
			t.Errorf("missing ignore regex: %s", cmd)
		}
		if !strings.Contains(cmd, "/bin/sh -object /bin/sh") {
			t.Errorf("missing objects: %s", cmd)
		}
	}

	data, err := os.ReadFile(filepath.Join(out, "summary.json"))
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	var s coverage.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if s.Lines != 75 || s.Functions != 90 || s.Regions != 50 || s.Branches != 25 {
		t.Errorf("summary: got %+v", s)
	}
}

func TestLLVMToleratesPerTargetFailure(t *testing.T) {
	layout := newLayout(t)
	a := ranTarget(t, layout, "a", true, 0)
	b := ranTarget(t, layout, "b", true, 0)
	rec := &command.Recorder{Handle: func(spec command.Spec) ([]byte, error) {
		if spec.Name == "llvm-profdata" && strings.Contains(strings.Join(spec.Args, " "), "a.profraw") {
			return nil, result.Errf(result.CallCommand, "corrupt profile")
		}
		if spec.Name == "llvm-cov" && spec.Args[0] == "export" {
			return []byte(exportJSON), nil
		}
		return nil, nil
	}}
	out := t.TempDir()
	c, _ := coverage.New(&config.Coverage{Type: "llvm", Output: out}, coverage.Context{Runner: rec, Workers: 2})
	if err := c.GenReport(context.Background(), []*target.Target{a, b}); err != nil {
		t.Fatalf("GenReport: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "summary.json"))
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	var s coverage.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if len(s.Skipped) != 1 || s.Skipped[0] != "a" {
		t.Errorf("skipped: got %v, want [a]", s.Skipped)
	}
}

func TestLLVMToolFailure(t *testing.T) {
	layout := newLayout(t)
	a := ranTarget(t, layout, "a", true, 0)
	rec := &command.Recorder{Handle: func(spec command.Spec) ([]byte, error) {
		if spec.Name == "llvm-cov" {
			return nil, errors.New("llvm-cov: not found")
		}
		return nil, nil
	}}
	c, _ := coverage.New(&config.Coverage{Type: "llvm", Output: t.TempDir()}, coverage.Context{Runner: rec})
	err := c.GenReport(context.Background(), []*target.Target{a})
	if result.CodeOf(err) != result.CoverageGenerate {
		t.Errorf("code: got %v (err %v)", result.CodeOf(err), err)
	}
}

func TestJaCoCoGenReport(t *testing.T) {
	layout := newLayout(t)
	a := ranTarget(t, layout, "a", true, 0)
	rec := &command.Recorder{}
	out := filepath.Join(t.TempDir(), "jacoco")
	c, err := coverage.New(&config.Coverage{
		Type: "jacoco", Output: out, JacocoCLI: "/opt/jacococli.jar",
		ClassFiles: []string{"build/classes"}, SourceFiles: []string{"src/main/java"},
	}, coverage.Context{Runner: rec})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.GenReport(context.Background(), []*target.Target{a}); err != nil {
		t.Fatalf("GenReport: %v", err)
	}
	cmds := rec.Commands()
	if len(cmds) != 1 {
		t.Fatalf("expected one call, got %v", cmds)
	}
	want := "java -jar /opt/jacococli.jar report " + a.CoverageRawData() +
		" --classfiles build/classes --sourcefiles src/main/java --html " + out +
		" --xml " + filepath.Join(out, "jacoco.xml")
	if cmds[0] != want {
		t.Errorf("command:\n got %s\nwant %s", cmds[0], want)
	}
}

func TestGlobToRegex(t *testing.T) {
	tests := []struct{ in, want string }{
		{"third_party/*", "third_party/.*"},
		{"*_test.cc", `.*_test\.cc`},
		{"gen/?.h", `gen/.\.h`},
	}
	for _, tt := range tests {
		if got := coverage.GlobToRegex(tt.in); got != tt.want {
			t.Errorf("GlobToRegex(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseExportEmpty(t *testing.T) {
	if _, err := coverage.ParseExport([]byte(`{"data":[]}`)); err == nil {
		t.Error("expected error for empty export")
	}
}
