package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type TargetRow struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count"`
	CostMS     int64  `json:"cost_ms"`
	ExitCode   int    `json:"exit_code"`
	Tests      int    `json:"tests,omitempty"`
	Failures   int    `json:"failures,omitempty"`
}

type RunSummary struct {
	Plugin   string      `json:"plugin"`
	Status   string      `json:"status"`
	Error    string      `json:"error,omitempty"`
	Targets  []TargetRow `json:"targets"`
	Passed   int         `json:"passed"`
	PassRate float64     `json:"pass_rate"`
}

// Generate reads a trace-event file written by a run and renders it.
func Generate(tracePath, format string, w io.Writer) error {
	tf, err := ReadTraceFile(tracePath)
	if err != nil {
		return err
	}
	rs := aggregate(tf.TraceEvents)
	switch format {
	case "markdown":
		return writeMarkdown(rs, w)
	case "json":
		return writeJSON(rs, w)
	default:
		return writeTable(rs, w)
	}
}

func aggregate(events []TraceEvent) *RunSummary {
	rs := &RunSummary{}
	for _, ev := range events {
		args := ev.Args
		if _, ok := args["plugin"]; ok {
			rs.Plugin = str(args["plugin"])
			rs.Status = str(args["status"])
			rs.Error = str(args["error"])
			continue
		}
		if _, ok := args["name"]; !ok {
			continue
		}
		row := TargetRow{
			Name:       str(args["name"]),
			Kind:       str(args["kind"]),
			Status:     str(args["status"]),
			RetryCount: num(args["retry_count"]),
			CostMS:     int64(num(args["cost_ms"])),
			ExitCode:   num(args["exit_code"]),
			Tests:      num(args["tests"]),
			Failures:   num(args["failures"]),
		}
		if row.Status == "success" {
			rs.Passed++
		}
		rs.Targets = append(rs.Targets, row)
	}
	if len(rs.Targets) > 0 {
		rs.PassRate = float64(rs.Passed) / float64(len(rs.Targets))
	}
	return rs
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func num(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

func writeTable(rs *RunSummary, w io.Writer) error {
	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tKIND\tSTATUS\tRETRIES\tCOST\tEXIT\tTESTS")
	fmt.Fprintln(tw, strings.Repeat("-", 72))
	for _, t := range rs.Targets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%d\t%s\n",
			t.Name, t.Kind, title.String(t.Status), t.RetryCount, t.CostMS, t.ExitCode, testsCell(t))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s: %s  passed %d/%d (%.0f%%)\n",
		rs.Plugin, title.String(rs.Status), rs.Passed, len(rs.Targets), rs.PassRate*100)
	if rs.Error != "" {
		fmt.Fprintf(w, "error: %s\n", rs.Error)
	}
	return nil
}

func writeMarkdown(rs *RunSummary, w io.Writer) error {
	title := cases.Title(language.English)
	fmt.Fprintf(w, "## %s (%s)\n\n", rs.Plugin, title.String(rs.Status))
	fmt.Fprintln(w, "| Target | Kind | Status | Retries | Cost | Exit | Tests |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, t := range rs.Targets {
		fmt.Fprintf(w, "| %s | %s | %s | %d | %dms | %d | %s |\n",
			t.Name, t.Kind, title.String(t.Status), t.RetryCount, t.CostMS, t.ExitCode, testsCell(t))
	}
	fmt.Fprintf(w, "\nPassed %d/%d (%.0f%%)\n", rs.Passed, len(rs.Targets), rs.PassRate*100)
	return nil
}

func writeJSON(rs *RunSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rs)
}

func testsCell(t TargetRow) string {
	if t.Tests == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", t.Tests-t.Failures, t.Tests)
}
