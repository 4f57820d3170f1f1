package coverage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/target"
)

// JaCoCo renders html and xml reports from pulled .ec execution files.
type JaCoCo struct {
	output      string
	cli         string
	classFiles  []string
	sourceFiles []string
	rc          Context
}

func (c *JaCoCo) GenReport(ctx context.Context, targets []*target.Target) error {
	targets = usable(c.rc.Logger, targets)
	if len(targets) == 0 {
		c.rc.Logger.Info("no jacoco execution data, skipping report")
		return nil
	}
	if err := os.MkdirAll(c.output, 0o755); err != nil {
		return generateErr(err, "creating coverage dir")
	}
	args := []string{"-jar", c.cli, "report"}
	for _, t := range targets {
		args = append(args, t.CoverageRawData())
	}
	for _, cf := range c.classFiles {
		args = append(args, "--classfiles", cf)
	}
	for _, sf := range c.sourceFiles {
		args = append(args, "--sourcefiles", sf)
	}
	args = append(args, "--html", c.output, "--xml", filepath.Join(c.output, "jacoco.xml"))
	if _, err := c.rc.Runner.Run(ctx, command.Spec{Name: "java", Args: args}); err != nil {
		return generateErr(err, "running jacoco report")
	}
	c.rc.Logger.Info("coverage report generated", "dir", c.output)
	return nil
}
