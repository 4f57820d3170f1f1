package container

import (
	"context"

	"github.com/signalnine/crucible/internal/target"
)

// Environment is the machine targets run on. It is prepared before any
// builder runs and torn down after coverage, whatever the outcome.
type Environment interface {
	Prepare(ctx context.Context) error
	Inject(t *target.Target)
	// Capture starts environment-wide log capture at the beginning of a test.
	Capture(ctx context.Context) error
	CoverageAllowed(ctx context.Context) bool
	Teardown(ctx context.Context) error
}

// Host runs targets on the local machine.
type Host struct{}

func (Host) Prepare(ctx context.Context) error        { return nil }
func (Host) Inject(t *target.Target)                  {}
func (Host) Capture(ctx context.Context) error        { return nil }
func (Host) CoverageAllowed(ctx context.Context) bool { return true }
func (Host) Teardown(ctx context.Context) error       { return nil }
