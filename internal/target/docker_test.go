package target

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/result"
)

func TestContainerExitCode(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0},
		{1, 1},
		{128, 128},
		{139, -11},
		{134, -6},
		{137, -9},
		{255, 255},
	}
	for _, tt := range tests {
		if got := containerExitCode(tt.in); got != tt.want {
			t.Errorf("containerExitCode(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDockerEnvAddsProfileFile(t *testing.T) {
	d := &dockerVariant{image: "alpine:latest"}
	tg := &Target{Name: "unit", Env: []string{"A=1"}, Coverage: true}
	env := d.containerEnv(tg)
	if len(env) != 2 || env[1] != "LLVM_PROFILE_FILE=/crucible/out/unit.profraw" {
		t.Errorf("env: %v", env)
	}
}

func TestDockerTargetRuns(t *testing.T) {
	if os.Getenv("CRUCIBLE_DOCKER_TESTS") == "" {
		t.Skip("set CRUCIBLE_DOCKER_TESTS=1 to run Docker tests")
	}
	binDir := t.TempDir()
	script := filepath.Join(binDir, "unit.sh")
	os.WriteFile(script, []byte("#!/bin/sh\necho inside container\nexit 3\n"), 0o755)

	layout, _ := result.NewLayout(t.TempDir())
	tg, err := New(config.Target{Name: "unit", Owners: []string{"a"}, Type: "docker", Image: "alpine:latest", Cwd: t.TempDir()},
		KindNative, Deps{Layout: layout})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tg.TargetPath = script

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := tg.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := tg.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code, ok := tg.ReturnCode(); !ok || code != 3 {
		t.Errorf("return code: %d %v", code, ok)
	}
	data, _ := os.ReadFile(tg.LogFile)
	if len(data) == 0 {
		t.Error("container output should be copied to the log")
	}
}
