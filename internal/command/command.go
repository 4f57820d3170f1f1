package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/signalnine/crucible/internal/result"
)

// Spec describes one external command invocation.
type Spec struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

func (s Spec) String() string {
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

// Runner executes external commands. Builders, coverage generators, device
// handling and crash analysis all go through it so tests can substitute a
// recording fake.
type Runner interface {
	Run(ctx context.Context, spec Spec) ([]byte, error)
}

// Exec runs commands on the host.
type Exec struct{}

// Run executes spec and returns its combined output. A non-zero exit or a
// failure to start is a CALL_COMMAND_ERR carrying the output.
func (Exec) Run(ctx context.Context, spec Spec) ([]byte, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.WaitDelay = 2 * time.Second
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, &result.Error{
				Code:    result.CallCommand,
				Message: fmt.Sprintf("%s: timed out after %s", spec, spec.Timeout),
				Cause:   context.DeadlineExceeded,
			}
		}
		return out, &result.Error{
			Code:    result.CallCommand,
			Message: fmt.Sprintf("%s: %s", spec, strings.TrimSpace(string(out))),
			Cause:   err,
		}
	}
	return out, nil
}

// Shell wraps a shell snippet for Runner.Run.
func Shell(script, dir string) Spec {
	return Spec{Name: "sh", Args: []string{"-c", script}, Dir: dir}
}

// IsTimeout reports whether err came from a command hitting its timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
