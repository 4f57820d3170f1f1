package target

import (
	"encoding/xml"
	"fmt"
	"os"
)

// JUnitResult holds the counts from a JUnit XML report.
type JUnitResult struct {
	Tests    int
	Failures int
	Errors   int
	Skipped  int
}

type junitSuite struct {
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

// ParseJUnit reads either a <testsuite> or a <testsuites> document.
func ParseJUnit(path string) (*JUnitResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading junit report: %w", err)
	}
	var root junitSuite
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing junit report: %w", err)
	}
	res := &JUnitResult{}
	if len(root.Suites) == 0 {
		res.add(root)
		return res, nil
	}
	for _, s := range root.Suites {
		res.add(s)
	}
	return res, nil
}

func (r *JUnitResult) add(s junitSuite) {
	r.Tests += s.Tests
	r.Failures += s.Failures
	r.Errors += s.Errors
	r.Skipped += s.Skipped
}

func (r *JUnitResult) Passed() int {
	p := r.Tests - r.Failures - r.Errors - r.Skipped
	if p < 0 {
		return 0
	}
	return p
}
