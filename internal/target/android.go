package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/result"
)

const (
	installTimeout = 120 * time.Second
	installRetries = 1
	testRunner     = "androidx.test.runner.AndroidJUnitRunner"
)

// androidVariant installs an instrumentation apk on the injected device and
// runs it with am instrument. withApp adds a separately built application
// apk installed alongside the test apk.
type androidVariant struct {
	withApp bool

	pkg string

	appTask string
	appAPK  string
	appPkg  string
}

func (a *androidVariant) init(t *Target) error {
	p := t.Params
	if p.Package == "" || p.Task == "" {
		return result.Errf(result.TargetConfig, "%s: package and task are required for android targets", t.Name)
	}
	a.pkg = p.Package
	t.BuildTasks = []string{p.Task}
	if a.withApp {
		if p.ApplicationTask == "" || p.ApplicationAPK == "" || p.ApplicationPackage == "" {
			return result.Errf(result.TargetConfig,
				"%s: application_task, application_apk and application_package are required", t.Name)
		}
		a.appTask = p.ApplicationTask
		a.appAPK = p.ApplicationAPK
		a.appPkg = p.ApplicationPackage
		t.BuildTasks = append(t.BuildTasks, a.appTask)
	}
	return nil
}

func (a *androidVariant) adb(t *Target, args ...string) command.Spec {
	return command.Spec{Name: "adb", Args: append([]string{"-s", t.DeviceName()}, args...), Dir: t.Cwd}
}

// install pushes an apk. A timeout restarts the device once and retries.
func (a *androidVariant) install(ctx context.Context, t *Target, apk string, logf *os.File) error {
	for attempt := 0; ; attempt++ {
		spec := a.adb(t, "install", "-g", apk)
		spec.Timeout = installTimeout
		out, err := t.runner.Run(ctx, spec)
		logf.Write(out)
		if err == nil {
			return nil
		}
		if !command.IsTimeout(err) {
			return &result.Error{Code: result.Install, Message: fmt.Sprintf("adb install failed for %s", t.Name), Cause: err}
		}
		if attempt >= installRetries {
			return result.Errf(result.Install, "adb install %s timeout: %s", apk, installTimeout)
		}
		t.log.Error("adb install timeout, retrying", "target", t.Name, "retry", fmt.Sprintf("%d/%d", attempt+1, installRetries))
		if restart := t.restartDevice(); restart != nil {
			if err := restart(ctx); err != nil {
				return &result.Error{Code: result.EnvPrepare, Message: "restarting device", Cause: err}
			}
		}
	}
}

func (a *androidVariant) instrumentArgs(t *Target) []string {
	args := []string{"-s", t.DeviceName(), "shell", "am", "instrument", "-w",
		"-e", "package", "com", "-e", "debug", "false"}
	if t.Coverage {
		args = append(args, "-e", "coverage", "true", "-e", "coverageFile", a.deviceCoveragePath(t))
	}
	args = append(args, t.Args...)
	return append(args, "-e", "module", t.Name, a.pkg+"/"+testRunner)
}

func (a *androidVariant) deviceCoveragePath(t *Target) string {
	return "/sdcard/coverage_" + t.Name + ".ec"
}

func (a *androidVariant) start(ctx context.Context, t *Target, logf *os.File) (process, error) {
	if t.DeviceName() == "" {
		return nil, result.Errf(result.EnvPrepare, "%s: no device available", t.Name)
	}
	if t.TargetPath == "" {
		return nil, result.Errf(result.TargetRun, "%s has not been built", t.Name)
	}
	if err := a.install(ctx, t, t.TargetPath, logf); err != nil {
		return nil, err
	}
	if a.withApp {
		if err := a.install(ctx, t, a.applicationPath(t), logf); err != nil {
			return nil, err
		}
	}
	p, err := startLocal("adb", a.instrumentArgs(t), t.Cwd, t.Env, logf)
	if err != nil {
		return nil, result.Wrap(result.TargetRun, err, "starting instrumentation for "+t.Name)
	}
	return p, nil
}

func (a *androidVariant) applicationPath(t *Target) string {
	if filepath.IsAbs(a.appAPK) {
		return a.appAPK
	}
	return filepath.Join(filepath.Dir(t.TargetPath), a.appAPK)
}

// finish pulls the JUnit report and, for a passing run, the coverage file,
// then uninstalls. Failures here are reported but do not fail the target.
func (a *androidVariant) finish(ctx context.Context, t *Target) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	xmlPath := t.layout.JUnitPath(t.Name)
	remoteXML := fmt.Sprintf("/sdcard/Android/data/%s/files/%s_output.xml", a.pkg, t.Name)
	if _, err := t.runner.Run(ctx, a.adb(t, "pull", remoteXML, xmlPath)); err != nil {
		t.log.Warn("pull xml data failed", "target", t.Name, "err", err)
	} else if res, err := ParseJUnit(xmlPath); err == nil {
		t.tests = res
	} else {
		keep(err)
	}

	if t.Coverage && !t.HasError() {
		_, err := t.runner.Run(ctx, a.adb(t, "pull", a.deviceCoveragePath(t), t.layout.CoverageDataPath(t.Name)))
		keep(err)
	}

	_, err := t.runner.Run(ctx, a.adb(t, "uninstall", a.pkg))
	keep(err)
	if a.withApp {
		_, err := t.runner.Run(ctx, a.adb(t, "uninstall", a.appPkg))
		keep(err)
	}
	return firstErr
}

func (a *androidVariant) markers() (errs, crashes []string) {
	return []string{"FAILURES!!!", "Error in", "Process crashed"}, []string{"Process crashed"}
}

func (a *androidVariant) rawCoverage(t *Target) string {
	return t.layout.CoverageDataPath(t.Name)
}

// Artifact is the build output path relative to the builder's workspace.
func (t *Target) Artifact() string {
	return t.Params.Artifact
}
