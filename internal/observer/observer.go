package observer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/signalnine/crucible/internal/target"
)

// Observer reacts to a failed target.
type Observer interface {
	Name() string
	Action(ctx context.Context, t *target.Target)
}

// Notify runs each observer on t in order, bracketing its output with
// begin and end markers. Nil observers are skipped.
func Notify(ctx context.Context, out io.Writer, observers []Observer, t *target.Target) {
	for _, o := range observers {
		if o == nil {
			continue
		}
		fmt.Fprintf(out, ">>>>> [Message From %s for %s]\n", o.Name(), t.Name)
		o.Action(ctx, t)
		fmt.Fprintf(out, "<<<<< [Message From %s for %s]\n", o.Name(), t.Name)
	}
}

const logTailLines = 50

// LogObserver prints the tail of the target's log.
type LogObserver struct {
	Out io.Writer
}

func (LogObserver) Name() string { return "LogObserver" }

func (o LogObserver) Action(ctx context.Context, t *target.Target) {
	lines, err := t.TailLog(logTailLines)
	if err != nil {
		fmt.Fprintf(o.Out, "%s log unavailable: %v\n", t.Name, err)
		return
	}
	fmt.Fprintf(o.Out, "%s log:\n......\n%s\n", t.Name, strings.Join(lines, "\n"))
}

// OwnersObserver prints who to contact about the target.
type OwnersObserver struct {
	Out io.Writer
}

func (OwnersObserver) Name() string { return "OwnersObserver" }

func (o OwnersObserver) Action(ctx context.Context, t *target.Target) {
	fmt.Fprintln(o.Out, "You can contact the owner for assistance in troubleshooting the issue!")
	for i, owner := range t.Owners {
		fmt.Fprintf(o.Out, "[%d]: %s\n", i+1, owner)
	}
}
