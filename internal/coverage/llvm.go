package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

// LLVM merges per-target .profraw files and renders an llvm-cov report.
type LLVM struct {
	output  string
	ignores []string
	rc      Context
}

// Summary holds coverage percentages (0-100).
type Summary struct {
	Lines     float64 `json:"lines"`
	Functions float64 `json:"functions"`
	Regions   float64 `json:"regions"`
	Branches  float64 `json:"branches"`
	// Skipped names targets whose profile could not be merged.
	Skipped []string `json:"skipped,omitempty"`
}

func (c *LLVM) GenReport(ctx context.Context, targets []*target.Target) error {
	targets = usable(c.rc.Logger, targets)
	if len(targets) == 0 {
		c.rc.Logger.Info("no llvm coverage data, skipping report")
		return nil
	}
	if err := os.MkdirAll(c.output, 0o755); err != nil {
		return generateErr(err, "creating coverage dir")
	}

	profiles := make([]string, len(targets))
	jobs := make([]Job, len(targets))
	for i, t := range targets {
		i, t := i, t
		jobs[i] = func(ctx context.Context) error {
			out := filepath.Join(c.output, t.Name+".profdata")
			spec := command.Spec{Name: "llvm-profdata", Args: []string{"merge", "-sparse", t.CoverageRawData(), "-o", out}}
			if _, err := c.rc.Runner.Run(ctx, spec); err != nil {
				c.rc.Logger.Warn("merging profile failed, skipping", "target", t.Name, "err", err)
				return err
			}
			profiles[i] = out
			return nil
		}
	}
	var skipped []string
	for _, i := range RunPool(ctx, c.rc.Workers, jobs) {
		skipped = append(skipped, targets[i].Name)
	}
	if len(skipped) > 0 {
		c.rc.Logger.Warn("profiles skipped", "count", len(skipped), "targets", strings.Join(skipped, ","))
	}

	var merged, objects []string
	for i, p := range profiles {
		if p == "" {
			continue
		}
		merged = append(merged, p)
		objects = append(objects, targets[i].TargetPath)
	}
	if len(merged) == 0 {
		return result.Errf(result.CoverageGenerate, "no profile could be merged")
	}

	profdata := filepath.Join(c.output, "merged.profdata")
	mergeArgs := append([]string{"merge", "-sparse"}, merged...)
	mergeArgs = append(mergeArgs, "-o", profdata)
	if _, err := c.rc.Runner.Run(ctx, command.Spec{Name: "llvm-profdata", Args: mergeArgs}); err != nil {
		return generateErr(err, "merging profiles")
	}

	common := append([]string{"-instr-profile=" + profdata}, c.ignoreArgs()...)
	common = append(common, objectArgs(objects)...)

	showArgs := append([]string{"show", "-format=html", "-output-dir=" + filepath.Join(c.output, "html")}, common...)
	if _, err := c.rc.Runner.Run(ctx, command.Spec{Name: "llvm-cov", Args: showArgs}); err != nil {
		return generateErr(err, "rendering llvm-cov report")
	}

	exportArgs := append([]string{"export", "-summary-only"}, common...)
	out, err := c.rc.Runner.Run(ctx, command.Spec{Name: "llvm-cov", Args: exportArgs})
	if err != nil {
		return generateErr(err, "exporting llvm-cov summary")
	}
	summary, err := ParseExport(out)
	if err != nil {
		return generateErr(err, "parsing llvm-cov summary")
	}
	summary.Skipped = skipped
	data, _ := json.MarshalIndent(summary, "", "  ")
	if err := os.WriteFile(filepath.Join(c.output, "summary.json"), data, 0o644); err != nil {
		return generateErr(err, "writing coverage summary")
	}
	c.rc.Logger.Info("coverage report generated", "dir", c.output,
		"lines", fmt.Sprintf("%.2f%%", summary.Lines), "functions", fmt.Sprintf("%.2f%%", summary.Functions))
	return nil
}

func (c *LLVM) ignoreArgs() []string {
	args := make([]string, 0, len(c.ignores))
	for _, ig := range c.ignores {
		args = append(args, "-ignore-filename-regex="+GlobToRegex(ig))
	}
	return args
}

// objectArgs names the first binary positionally and the rest with -object.
func objectArgs(objects []string) []string {
	if len(objects) == 0 {
		return nil
	}
	args := []string{objects[0]}
	for _, o := range objects[1:] {
		args = append(args, "-object", o)
	}
	return args
}

// GlobToRegex converts an ignore glob (* and ?) to an llvm-cov filename regex.
func GlobToRegex(glob string) string {
	re := regexp.QuoteMeta(glob)
	re = strings.ReplaceAll(re, `\*`, ".*")
	re = strings.ReplaceAll(re, `\?`, ".")
	return re
}

// exportDoc mirrors the llvm-cov export -summary-only JSON format.
type exportDoc struct {
	Data []struct {
		Totals struct {
			Lines     exportDetail `json:"lines"`
			Functions exportDetail `json:"functions"`
			Regions   exportDetail `json:"regions"`
			Branches  exportDetail `json:"branches"`
		} `json:"totals"`
	} `json:"data"`
}

type exportDetail struct {
	Count   int     `json:"count"`
	Covered int     `json:"covered"`
	Percent float64 `json:"percent"`
}

func ParseExport(data []byte) (*Summary, error) {
	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing llvm-cov export: %w", err)
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("llvm-cov export has no data")
	}
	totals := doc.Data[0].Totals
	return &Summary{
		Lines:     totals.Lines.Percent,
		Functions: totals.Functions.Percent,
		Regions:   totals.Regions.Percent,
		Branches:  totals.Branches.Percent,
	}, nil
}
