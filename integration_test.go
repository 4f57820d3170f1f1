//go:build integration

package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/crucible/internal/report"
)

// buildBinary compiles crucible into a temp dir.
func buildBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "crucible")
	c := exec.Command("go", "build", "-o", bin, ".")
	if out, err := c.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v: %s", err, out)
	}
	return bin
}

// createProject writes a config plus prebuilt shell-script targets.
func createProject(t *testing.T, config string, scripts map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "out"), 0o755)
	for name, body := range scripts {
		os.WriteFile(filepath.Join(dir, "out", name), []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	}
	os.WriteFile(filepath.Join(dir, "crucible.yaml"), []byte(config), 0o644)
	return dir
}

func runCrucible(t *testing.T, bin, dir string, args ...string) (string, int) {
	t.Helper()
	c := exec.Command(bin, append([]string{"--config", filepath.Join(dir, "crucible.yaml")}, args...)...)
	c.Dir = dir
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	err := c.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out.String(), exitErr.ExitCode()
	}
	if err != nil {
		t.Fatalf("running crucible: %v", err)
	}
	return out.String(), 0
}

const header = `plugin: native-ut
poll_interval: 50ms
timeout: 5s
builder:
  default:
    type: prebuilt
    output: out
targets:
`

func TestEndToEnd(t *testing.T) {
	bin := buildBinary(t)

	tests := []struct {
		name     string
		targets  string
		scripts  map[string]string
		wantCode int
		wantOut  []string
	}{
		{
			name:     "serial success",
			targets:  "  unit_a:\n    owners: [alice]\n",
			scripts:  map[string]string{"unit_a": "echo ok"},
			wantCode: 0,
			wantOut:  []string{"unit_a run success!"},
		},
		{
			name:     "parallel failure",
			targets:  "  unit_b:\n    owners: [alice]\n    enable_parallel: true\n",
			scripts:  map[string]string{"unit_b": "exit 1"},
			wantCode: 30,
			wantOut:  []string{"[Message From LogObserver for unit_b]", "[Message From OwnersObserver for unit_b]"},
		},
		{
			name:     "parallel crash",
			targets:  "  unit_c:\n    owners: [alice]\n    enable_parallel: true\n",
			scripts:  map[string]string{"unit_c": "kill -SEGV $$"},
			wantCode: 30,
			wantOut:  []string{"has error with code -11"},
		},
		{
			name:     "missing owners",
			targets:  "  unit_d:\n    retry: 0\n",
			scripts:  map[string]string{"unit_d": "touch ran"},
			wantCode: 12,
			wantOut:  []string{"you must add owners for unit_d"},
		},
		{
			name:     "timeout",
			targets:  "  unit_e:\n    owners: [alice]\n    enable_parallel: true\n",
			scripts:  map[string]string{"unit_e": "sleep 60"},
			wantCode: 31,
			wantOut:  []string{"unit_e timeout!"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := createProject(t, header+tt.targets, tt.scripts)
			out, code := runCrucible(t, bin, dir, "run", "--root", filepath.Join(dir, "results"))
			if code != tt.wantCode {
				t.Fatalf("exit code: got %d, want %d\n%s", code, tt.wantCode, out)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			if _, err := os.Stat(filepath.Join(dir, "ran")); err == nil {
				t.Error("target with missing owners must not run")
			}
		})
	}
}

func TestEndToEndTrace(t *testing.T) {
	bin := buildBinary(t)
	dir := createProject(t, header+"  unit_a:\n    owners: [alice]\n", map[string]string{"unit_a": "echo ok"})
	results := filepath.Join(dir, "results")
	if out, code := runCrucible(t, bin, dir, "run", "--root", results); code != 0 {
		t.Fatalf("run: exit %d\n%s", code, out)
	}
	tf, err := report.ReadTraceFile(filepath.Join(results, "native-ut-trace-events.json"))
	if err != nil {
		t.Fatalf("ReadTraceFile: %v", err)
	}
	var children int
	for _, ev := range tf.TraceEvents {
		if ev.Args["name"] == "unit_a" {
			children++
			if ev.Args["status"] != "success" {
				t.Errorf("status: %v", ev.Args["status"])
			}
		}
	}
	if children != 1 {
		t.Errorf("expected one target event, got %d", children)
	}
}

func TestEndToEndDocker(t *testing.T) {
	if os.Getenv("CRUCIBLE_DOCKER_TESTS") == "" {
		t.Skip("set CRUCIBLE_DOCKER_TESTS=1 to run Docker tests")
	}
	bin := buildBinary(t)
	targets := "  unit_docker:\n    type: docker\n    image: alpine:latest\n    owners: [alice]\n    enable_parallel: true\n"
	dir := createProject(t, strings.Replace(header, "timeout: 5s", "timeout: 2m", 1)+targets,
		map[string]string{"unit_docker": "echo from container"})
	out, code := runCrucible(t, bin, dir, "run", "--root", filepath.Join(dir, "results"))
	if code != 0 {
		t.Fatalf("exit code %d\n%s", code, out)
	}
	logData, _ := os.ReadFile(filepath.Join(dir, "results", "unit_docker.log"))
	if !strings.Contains(string(logData), "from container") {
		t.Errorf("container output not captured: %q", logData)
	}
}
