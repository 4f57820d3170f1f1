package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/crucible/internal/result"
)

const (
	DefaultPlugin       = "native-ut"
	DefaultTimeout      = 20 * time.Minute
	DefaultPollInterval = 2 * time.Second
	DefaultBuilder      = "default"
)

type Config struct {
	Plugin       string             `yaml:"plugin"`
	Workspace    string             `yaml:"workspace"`
	Timeout      time.Duration      `yaml:"timeout"`
	PollInterval time.Duration      `yaml:"poll_interval"`
	Vars         map[string]any     `yaml:"vars"`
	Builders     map[string]Builder `yaml:"builder"`
	Coverage     *Coverage          `yaml:"coverage"`
	Device       Device             `yaml:"device"`
	Targets      Targets            `yaml:"targets"`
}

type Builder struct {
	Type      string     `yaml:"type"`
	Args      StringList `yaml:"args"`
	Output    string     `yaml:"output"`
	Workspace string     `yaml:"workspace"`
}

type Coverage struct {
	Type        string   `yaml:"type"`
	Output      string   `yaml:"output"`
	Ignores     []string `yaml:"ignores"`
	JacocoCLI   string   `yaml:"jacoco_cli"`
	ClassFiles  []string `yaml:"class_files"`
	SourceFiles []string `yaml:"source_files"`
}

// Device configures the Android environment. Ignored by native-ut.
type Device struct {
	Serial      string        `yaml:"serial"`
	AVD         string        `yaml:"avd"`
	BootTimeout time.Duration `yaml:"boot_timeout"`
	Clean       *bool         `yaml:"clean"`
}

func (d Device) CleanBuild() bool {
	return d.Clean == nil || *d.Clean
}

type Target struct {
	Name           string            `yaml:"-"`
	Type           string            `yaml:"type"`
	Owners         []string          `yaml:"owners"`
	Enable         *bool             `yaml:"enable"`
	EnableParallel bool              `yaml:"enable_parallel"`
	Retry          int               `yaml:"retry"`
	Builder        string            `yaml:"builder"`
	BuildTarget    string            `yaml:"build_target"`
	Coverage       *bool             `yaml:"coverage"`
	Cwd            string            `yaml:"cwd"`
	Args           []string          `yaml:"args"`
	Env            map[string]string `yaml:"env"`
	PreActions     []string          `yaml:"pre_actions"`

	// docker
	Image string `yaml:"image"`

	// fuzzer
	Corpus       string        `yaml:"corpus"`
	MaxTotalTime time.Duration `yaml:"max_total_time"`

	// android
	Package            string `yaml:"package"`
	Task               string `yaml:"task"`
	Artifact           string `yaml:"artifact"`
	Symbol             string `yaml:"symbol"`
	ApplicationTask    string `yaml:"application_task"`
	ApplicationAPK     string `yaml:"application_apk"`
	ApplicationPackage string `yaml:"application_package"`

	Extra map[string]any `yaml:",inline"`
}

func (t Target) Enabled() bool {
	return t.Enable == nil || *t.Enable
}

func (t Target) CoverageEnabled() bool {
	return t.Coverage == nil || *t.Coverage
}

func (t Target) BuilderName() string {
	if t.Builder == "" {
		return DefaultBuilder
	}
	return t.Builder
}

// Targets keeps declaration order, which is also queue order.
type Targets []Target

func (ts *Targets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: targets must be a mapping", node.Line)
	}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if seen[name] {
			return fmt.Errorf("line %d: duplicate target %q", node.Content[i].Line, name)
		}
		seen[name] = true
		var t Target
		if err := node.Content[i+1].Decode(&t); err != nil {
			return fmt.Errorf("target %q: %w", name, err)
		}
		t.Name = name
		*ts = append(*ts, t)
	}
	return nil
}

// StringList accepts either a scalar or a sequence.
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Value != "" {
			*s = StringList{node.Value}
		}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// Load reads a configuration file, interpolates ${var} placeholders from its
// vars section and the given overrides, validates it against the embedded
// schema and applies defaults.
func Load(path string, overrides map[string]string) (*Config, error) {
	return LoadIn(path, "", overrides)
}

// LoadIn is Load with the workspace forced to workspace when it is not empty.
// A relative workspace from the file is taken relative to the file.
func LoadIn(path, workspace string, overrides map[string]string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, result.Wrap(result.PluginConfig, err, "reading config "+path)
	}
	cfg, err := Parse(data, overrides)
	if err != nil {
		return nil, result.Wrap(result.PluginConfig, err, "invalid config "+path)
	}
	switch {
	case workspace != "":
		cfg.Workspace = workspace
	case cfg.Workspace == "":
		cfg.Workspace = filepath.Dir(path)
	case !filepath.IsAbs(cfg.Workspace):
		cfg.Workspace = filepath.Join(filepath.Dir(path), cfg.Workspace)
	}
	if err := cfg.ResolvePaths(cfg.Workspace); err != nil {
		return nil, result.Wrap(result.PluginConfig, err, "resolving workspace")
	}
	return cfg, nil
}

func Parse(data []byte, overrides map[string]string) (*Config, error) {
	var head struct {
		Vars map[string]any `yaml:"vars"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	vars := make(map[string]string, len(head.Vars)+len(overrides))
	for k, v := range head.Vars {
		vars[k] = fmt.Sprint(v)
	}
	for k, v := range overrides {
		vars[k] = v
	}
	data = []byte(Interpolate(string(data), vars))

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Plugin == "" {
		cfg.Plugin = DefaultPlugin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Device.BootTimeout <= 0 {
		cfg.Device.BootTimeout = 5 * time.Minute
	}
}

// ResolvePaths makes builder output and workspace dirs, target cwd and
// coverage output and ignores absolute under workspace.
func (c *Config) ResolvePaths(workspace string) error {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return err
	}
	c.Workspace = abs
	for name, b := range c.Builders {
		b.Output = under(abs, b.Output)
		b.Workspace = under(abs, b.Workspace)
		c.Builders[name] = b
	}
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.Cwd == "" {
			t.Cwd = abs
		} else {
			t.Cwd = under(abs, t.Cwd)
		}
	}
	if c.Coverage != nil {
		c.Coverage.Output = under(abs, c.Coverage.Output)
		for i, ig := range c.Coverage.Ignores {
			c.Coverage.Ignores[i] = under(abs, ig)
		}
	}
	return nil
}

func under(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Select returns targets matching filter in declaration order. "all" or an
// empty filter selects every target; otherwise filter is a comma separated
// list of names.
func (c *Config) Select(filter string) ([]Target, error) {
	if filter == "" || filter == "all" {
		return append([]Target(nil), c.Targets...), nil
	}
	want := make(map[string]bool)
	for _, name := range strings.Split(filter, ",") {
		if name = strings.TrimSpace(name); name != "" {
			want[name] = true
		}
	}
	var selected []Target
	for _, t := range c.Targets {
		if want[t.Name] {
			selected = append(selected, t)
			delete(want, t.Name)
		}
	}
	for name := range want {
		return nil, result.Errf(result.TargetConfig, "unknown target %q", name)
	}
	return selected, nil
}

// ParseVarArgs turns --args values of the form key=value into overrides.
func ParseVarArgs(args []string) (map[string]string, error) {
	vars := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, result.Errf(result.PluginConfig, "invalid --args entry %q, want key=value", a)
		}
		vars[k] = v
	}
	return vars, nil
}
