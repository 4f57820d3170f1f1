package container

import (
	"context"
	"fmt"
	"time"

	"github.com/signalnine/crucible/internal/observer"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

func (c *Container) runSerial(ctx context.Context, t *target.Target) error {
	if err := t.RunPreActions(ctx); err != nil {
		return err
	}
	if err := t.Run(ctx); err != nil {
		return err
	}
	for {
		if err := t.Wait(ctx); err != nil {
			t.Kill(false)
			t.ForceKill()
			return result.Wrap(result.TargetRun, err, t.Name+" interrupted")
		}
		if !t.HasError() {
			fmt.Fprintf(c.out, "%s run success! CostTime (%dms)%s\n", t.Name, t.CostTime().Milliseconds(), retrySuffix(t))
			return nil
		}
		if !t.CanRetry() {
			c.log.Error("target failed", "target", t.Name, "status", t.Status())
			c.notify(ctx, t)
			return c.failure(t)
		}
		c.log.Error("target failed, retrying", "target", t.Name, "retry", fmt.Sprintf("%d/%d", t.RetryCount+1, t.Retry))
		if err := t.Rerun(ctx); err != nil {
			return err
		}
	}
}

// runParallel launches every parallel target and polls them until all have
// succeeded, one has exhausted its retries, or the batch timeout elapses.
func (c *Container) runParallel(ctx context.Context) error {
	for _, t := range c.parallel {
		if err := t.RunPreActions(ctx); err != nil {
			c.killAll(false)
			return err
		}
		if err := t.Run(ctx); err != nil {
			c.killAll(false)
			return err
		}
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	done := make(map[*target.Target]bool, len(c.parallel))
	for {
		allStopped := true
		for _, t := range c.parallel {
			if done[t] {
				continue
			}
			if !t.IsEnd() {
				allStopped = false
				continue
			}
			if err := t.Wait(ctx); err != nil {
				c.killAll(false)
				return result.Wrap(result.TargetRun, err, t.Name+" interrupted")
			}
			if t.HasError() {
				if t.CanRetry() {
					c.log.Error("target failed, retrying", "target", t.Name, "retry", fmt.Sprintf("%d/%d", t.RetryCount+1, t.Retry))
					if err := t.Rerun(ctx); err != nil {
						c.killAll(false)
						return err
					}
					allStopped = false
					continue
				}
				c.log.Error("target failed", "target", t.Name, "status", t.Status())
				c.notify(ctx, t)
				c.killAll(false)
				return c.failure(t)
			}
			done[t] = true
			fmt.Fprintf(c.out, "[%d/%d] %s run success! CostTime (%dms)%s\n",
				len(done), len(c.parallel), t.Name, t.CostTime().Milliseconds(), retrySuffix(t))
			c.printRunning(done)
		}
		if allStopped {
			return nil
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			return c.onTimeout(ctx)
		case <-ctx.Done():
			c.killAll(false)
			return result.Wrap(result.TargetRun, ctx.Err(), "run interrupted")
		}
	}
}

func (c *Container) onTimeout(ctx context.Context) error {
	logs := observer.LogObserver{Out: c.out}
	for _, t := range c.parallel {
		if t.IsEnd() {
			continue
		}
		c.log.Error("target timed out", "target", t.Name, "timeout", c.timeout)
		fmt.Fprintf(c.out, "%s timeout!\n", t.Name)
		logs.Action(ctx, t)
	}
	c.killAll(true)
	return result.Errf(result.TargetRunTimeout, "target run timeout after %s", c.timeout)
}

func (c *Container) printRunning(done map[*target.Target]bool) {
	var running []string
	for _, t := range c.parallel {
		if !done[t] {
			running = append(running, t.Name)
		}
	}
	if len(running) > runningHintThreshold {
		return
	}
	for _, name := range running {
		fmt.Fprintf(c.out, "%s is running!\n", name)
	}
}

// killAll terminates every unfinished parallel target, gives them the grace
// period to exit, then kills whatever is left and records the outcome.
func (c *Container) killAll(isTimeout bool) {
	var live []*target.Target
	for _, t := range c.parallel {
		if !t.IsEnd() {
			t.Kill(isTimeout)
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return
	}
	grace := time.After(c.opts.KillGrace)
	for !allEnded(live) {
		select {
		case <-grace:
			for _, t := range live {
				t.ForceKill()
			}
			c.settle(live)
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	c.settle(live)
}

func (c *Container) settle(targets []*target.Target) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.KillGrace)
	defer cancel()
	for _, t := range targets {
		if err := t.Wait(ctx); err != nil {
			c.log.Warn("target did not exit after kill", "target", t.Name)
		}
	}
}

func allEnded(targets []*target.Target) bool {
	for _, t := range targets {
		if !t.IsEnd() {
			return false
		}
	}
	return true
}

func retrySuffix(t *target.Target) string {
	if t.RetryCount == 0 {
		return ""
	}
	return fmt.Sprintf(" retry pass (%d/%d)", t.RetryCount, t.Retry)
}
