package plugin_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/plugin"
	"github.com/signalnine/crucible/internal/report"
	"github.com/signalnine/crucible/internal/result"
)

func scriptConfig(t *testing.T, scripts map[string]string, order ...string) *config.Config {
	t.Helper()
	bin := t.TempDir()
	cfg := &config.Config{
		Plugin:       "native-ut",
		Builders:     map[string]config.Builder{"default": {Type: "prebuilt", Output: bin}},
		Timeout:      10 * time.Second,
		PollInterval: 20 * time.Millisecond,
	}
	for _, name := range order {
		if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\n"+scripts[name]+"\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		cfg.Targets = append(cfg.Targets, config.Target{Name: name, Owners: []string{"alice"}, Cwd: t.TempDir(), EnableParallel: true})
	}
	return cfg
}

func newLayout(t *testing.T) result.Layout {
	t.Helper()
	layout, err := result.NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	return layout
}

func TestNewUnknownPlugin(t *testing.T) {
	_, err := plugin.New(&config.Config{Plugin: "ios-ut"}, plugin.Options{})
	if result.CodeOf(err) != result.PluginConfig {
		t.Errorf("code: got %v", result.CodeOf(err))
	}
}

func TestNewKnownPlugins(t *testing.T) {
	for _, name := range []string{"native-ut", "android-ut"} {
		p, err := plugin.New(&config.Config{Plugin: name}, plugin.Options{GOOS: "none", Layout: newLayout(t)})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if string(p.Name()) != name {
			t.Errorf("name: got %s", p.Name())
		}
	}
}

func TestRunWritesTrace(t *testing.T) {
	tests := []struct {
		name       string
		scripts    map[string]string
		wantStatus string
		wantErr    bool
	}{
		{"success", map[string]string{"unit_a": "true", "unit_b": "true"}, "success", false},
		{"failure", map[string]string{"unit_a": "true", "unit_b": "exit 2"}, "failure", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := newLayout(t)
			var out bytes.Buffer
			p, err := plugin.New(scriptConfig(t, tt.scripts, "unit_a", "unit_b"),
				plugin.Options{Layout: layout, Out: &out, GOOS: "none"})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			err = p.Run(context.Background(), "all")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run: %v", err)
			}

			tf, err := report.ReadTraceFile(layout.TracePath("native-ut"))
			if err != nil {
				t.Fatalf("ReadTraceFile: %v", err)
			}
			if len(tf.TraceEvents) != 3 {
				t.Fatalf("events: got %d, want 3", len(tf.TraceEvents))
			}
			for _, ev := range tf.TraceEvents {
				if ev.Name != "native_ut_monitor" || ev.Phase != "i" {
					t.Errorf("event: %+v", ev)
				}
			}
			var root map[string]any
			for _, ev := range tf.TraceEvents {
				if _, ok := ev.Args["plugin"]; ok {
					root = ev.Args
				}
			}
			if root == nil || root["status"] != tt.wantStatus {
				t.Errorf("root event: %v", root)
			}
			if tt.wantErr && root["code"] != result.TargetRun.String() {
				t.Errorf("root code: %v", root["code"])
			}
		})
	}
}

func TestList(t *testing.T) {
	off := false
	cfg := &config.Config{Targets: config.Targets{
		{Name: "base_unittests", Owners: []string{"alice", "bob"}},
		{Name: "disabled_one", Owners: []string{"carol"}, Enable: &off},
		{Name: "fuzz_parser", Owners: []string{"dave"}},
	}}
	var out bytes.Buffer
	plugin.List(cfg, &out)
	want := "[0]: base_unittests  owners:(alice,bob)\n[1]: fuzz_parser  owners:(dave)\n"
	if out.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestCheck(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Plugin:   "native-ut",
			Builders: map[string]config.Builder{"default": {Type: "gn", Output: "out/Default"}},
			Coverage: &config.Coverage{Type: "llvm", Output: "coverage"},
			Targets:  config.Targets{{Name: "base_unittests", Owners: []string{"alice"}}},
		}
	}
	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   result.Code
	}{
		{"valid", func(*config.Config) {}, result.OK},
		{"unknown plugin", func(c *config.Config) { c.Plugin = "web" }, result.PluginConfig},
		{"bad builder", func(c *config.Config) { c.Builders["default"] = config.Builder{Type: "bazel"} }, result.BuilderConfig},
		{"missing builder", func(c *config.Config) { c.Targets[0].Builder = "android" }, result.BuilderConfig},
		{"bad coverage", func(c *config.Config) { c.Coverage.Type = "gcov" }, result.CoverageConfig},
		{"missing owners", func(c *config.Config) { c.Targets[0].Owners = nil }, result.TargetConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := plugin.Check(cfg)
			if result.CodeOf(err) != tt.code {
				t.Errorf("code: got %v, want %v (err %v)", result.CodeOf(err), tt.code, err)
			}
		})
	}
}
