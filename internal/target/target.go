package target

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/report"
	"github.com/signalnine/crucible/internal/result"
)

type Kind string

const (
	KindNative             Kind = "native"
	KindFuzzer             Kind = "fuzzer"
	KindDocker             Kind = "docker"
	KindAndroid            Kind = "android"
	KindAndroidApplication Kind = "android-application"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusCrash   Status = "crash"
	StatusTimeout Status = "timeout"
	StatusAborted Status = "aborted"
)

// Keys of Target.GlobalInfo set by the environment.
const (
	InfoDeviceName    = "device_name"
	InfoRestartDevice = "restart_device_handler"
)

// RestartFunc restarts the shared device and re-injects it into every target.
type RestartFunc func(ctx context.Context) error

// SIGSEGV, SIGABRT, SIGILL, SIGTRAP.
var crashCodes = map[int]bool{-11: true, -6: true, -4: true, -5: true}

const exitUnknown = -1 << 16

// Target is one runnable unit of a run. It owns its process; the container
// owns the target list and queue membership.
type Target struct {
	Name       string
	Kind       Kind
	Params     config.Target
	Owners     []string
	Builder    string
	BuildTasks []string
	TargetPath string
	Args       []string
	Cwd        string
	Env        []string
	Coverage   bool
	Parallel   bool

	Retry      int
	RetryCount int

	StartTime time.Time
	EndTime   time.Time
	IsAborted bool
	IsTimeout bool
	LogFile   string

	GlobalInfo map[string]any

	layout  result.Layout
	runner  command.Runner
	log     *slog.Logger
	variant variant

	proc      process
	attempts  int
	startErr  error
	settled   bool
	exitCode  int
	logOffset int64
	errMarker bool
	crashMark bool
	tests     *JUnitResult
}

func (t *Target) InsertGlobalInfo(key string, value any) {
	if t.GlobalInfo == nil {
		t.GlobalInfo = make(map[string]any)
	}
	t.GlobalInfo[key] = value
}

func (t *Target) DeviceName() string {
	s, _ := t.GlobalInfo[InfoDeviceName].(string)
	return s
}

func (t *Target) restartDevice() RestartFunc {
	fn, _ := t.GlobalInfo[InfoRestartDevice].(RestartFunc)
	return fn
}

func (t *Target) Enabled() bool {
	return t.Params.Enabled()
}

// RunPreActions executes the configured shell pre-actions in the target's
// working directory.
func (t *Target) RunPreActions(ctx context.Context) error {
	for _, action := range t.Params.PreActions {
		t.log.Debug("pre-action", "target", t.Name, "cmd", action)
		if _, err := t.runner.Run(ctx, command.Shell(action, t.Cwd)); err != nil {
			return result.Wrap(result.CallCommand, err, t.Name+" pre-action")
		}
	}
	return nil
}

// Run starts the target's process. The log is truncated on the first attempt
// and appended to on retries.
func (t *Target) Run(ctx context.Context) error {
	if t.proc != nil && !t.isDone() {
		return result.Errf(result.TargetRun, "%s is already running", t.Name)
	}
	logf, err := t.openLog()
	if err != nil {
		return result.Wrap(result.TargetRun, err, "opening log for "+t.Name)
	}

	t.StartTime = time.Now()
	t.EndTime = time.Time{}
	t.IsAborted = false
	t.IsTimeout = false
	t.settled = false
	t.startErr = nil
	t.exitCode = exitUnknown
	t.errMarker = false
	t.crashMark = false
	t.attempts++

	proc, err := t.variant.start(ctx, t, logf)
	if err != nil {
		logf.Close()
		t.proc = nil
		t.startErr = err
		t.EndTime = time.Now()
		t.settled = true
		return err
	}
	t.proc = proc
	return nil
}

// Rerun is one retry: it bumps RetryCount and runs again in place.
func (t *Target) Rerun(ctx context.Context) error {
	t.RetryCount++
	return t.Run(ctx)
}

func (t *Target) CanRetry() bool {
	return t.RetryCount < t.Retry
}

func (t *Target) openLog() (*os.File, error) {
	if t.attempts == 0 {
		f, err := os.Create(t.LogFile)
		if err != nil {
			return nil, err
		}
		t.logOffset = 0
		return f, nil
	}
	f, err := os.OpenFile(t.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(f, "\n===== %s retry %d/%d =====\n", t.Name, t.RetryCount, t.Retry)
	off, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}
	t.logOffset = off
	return f, nil
}

func (t *Target) isDone() bool {
	select {
	case <-t.proc.Done():
		return true
	default:
		return false
	}
}

// IsEnd polls the process without blocking.
func (t *Target) IsEnd() bool {
	if t.proc == nil {
		return true
	}
	return t.isDone()
}

// Wait blocks until the process exits, then records the exit status, scans
// this attempt's log output and runs the variant's post-run steps.
func (t *Target) Wait(ctx context.Context) error {
	if t.proc == nil || t.settled {
		return nil
	}
	if !t.isDone() {
		select {
		case <-t.proc.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.settle(ctx)
	return nil
}

func (t *Target) settle(ctx context.Context) {
	t.settled = true
	t.exitCode = t.proc.ExitCode()
	if t.EndTime.IsZero() {
		t.EndTime = time.Now()
	}
	errs, crashes := t.variant.markers()
	t.errMarker, t.crashMark = t.scanLog(errs, crashes)
	if err := t.variant.finish(ctx, t); err != nil {
		t.log.Warn("post-run step failed", "target", t.Name, "err", err)
	}
}

func (t *Target) scanLog(errs, crashes []string) (hasErr, hasCrash bool) {
	if len(errs) == 0 && len(crashes) == 0 {
		return false, false
	}
	f, err := os.Open(t.LogFile)
	if err != nil {
		return false, false
	}
	defer f.Close()
	if _, err := f.Seek(t.logOffset, io.SeekStart); err != nil {
		return false, false
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		for _, m := range errs {
			if strings.Contains(line, m) {
				hasErr = true
			}
		}
		for _, m := range crashes {
			if strings.Contains(line, m) {
				hasCrash = true
			}
		}
	}
	return hasErr || hasCrash, hasCrash
}

// ReturnCode is the exit status of the last attempt. Death by signal N is
// reported as -N. ok is false while running or when the status is unknown.
func (t *Target) ReturnCode() (code int, ok bool) {
	if !t.settled || t.exitCode == exitUnknown {
		return 0, false
	}
	return t.exitCode, true
}

// HasError reports a failed attempt: non-zero or unknown exit status, a start
// failure, or a failure marker in this attempt's log output.
func (t *Target) HasError() bool {
	if t.startErr != nil {
		return true
	}
	if !t.settled {
		return false
	}
	if t.exitCode != 0 {
		return true
	}
	return t.errMarker
}

// HasCrash is HasError restricted to fatal signals or a crash marker.
func (t *Target) HasCrash() bool {
	if !t.HasError() || t.startErr != nil {
		return false
	}
	return crashCodes[t.exitCode] || t.crashMark
}

// StartErr is the error that prevented the last attempt from starting.
func (t *Target) StartErr() error {
	return t.startErr
}

// Kill terminates a running target and records why.
func (t *Target) Kill(isTimeout bool) {
	if t.proc == nil || t.isDone() {
		return
	}
	t.EndTime = time.Now()
	t.IsAborted = true
	t.IsTimeout = isTimeout
	if err := t.proc.Terminate(); err != nil {
		t.log.Warn("terminate failed", "target", t.Name, "err", err)
	}
}

// ForceKill is the follow-up to Kill for a process that ignored terminate.
func (t *Target) ForceKill() {
	if t.proc == nil || t.isDone() {
		return
	}
	if err := t.proc.Kill(); err != nil {
		t.log.Warn("kill failed", "target", t.Name, "err", err)
	}
}

func (t *Target) Pid() int {
	if t.proc == nil {
		return 0
	}
	return t.proc.Pid()
}

func (t *Target) Started() bool {
	return t.attempts > 0
}

func (t *Target) CostTime() time.Duration {
	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

func (t *Target) Status() Status {
	switch {
	case t.attempts == 0:
		return StatusPending
	case t.IsTimeout:
		return StatusTimeout
	case t.proc != nil && !t.settled && !t.isDone():
		return StatusRunning
	case t.IsAborted:
		return StatusAborted
	case t.HasCrash():
		return StatusCrash
	case t.HasError():
		return StatusError
	}
	return StatusSuccess
}

// CoverageRawData returns the raw coverage file of the last attempt, or ""
// when coverage is off or nothing was written.
func (t *Target) CoverageRawData() string {
	if !t.Coverage {
		return ""
	}
	path := t.variant.rawCoverage(t)
	if path == "" {
		return ""
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		return ""
	}
	return path
}

// TailLog returns up to n trailing lines of the cumulative log.
func (t *Target) TailLog(n int) ([]string, error) {
	f, err := os.Open(t.LogFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, sc.Err()
}

func (t *Target) Summary() *report.Summary {
	s := report.NewSummary().
		Set("name", t.Name).
		Set("kind", string(t.Kind)).
		Set("status", string(t.Status())).
		Set("retry_count", t.RetryCount).
		Set("cost_ms", t.CostTime().Milliseconds()).
		Set("owners", strings.Join(t.Owners, ","))
	if code, ok := t.ReturnCode(); ok {
		s.Set("exit_code", code)
	}
	if t.tests != nil {
		s.Set("tests", t.tests.Tests).Set("failures", t.tests.Failures+t.tests.Errors)
	}
	return s
}
