package target_test

import (
	"context"
	"strings"
	"testing"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

func newAndroidTarget(t *testing.T, rec *command.Recorder, cfg config.Target) *target.Target {
	t.Helper()
	layout, _ := result.NewLayout(t.TempDir())
	cfg.Name = "ui"
	cfg.Owners = []string{"frank"}
	tg, err := target.New(cfg, target.KindAndroid, target.Deps{Layout: layout, Runner: rec})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tg.TargetPath = "/out/ui-test.apk"
	return tg
}

func TestAndroidBuildTasks(t *testing.T) {
	tg := newAndroidTarget(t, &command.Recorder{}, config.Target{
		Type: "android-application", Package: "com.example.test", Task: "assembleAndroidTest",
		ApplicationTask: "assembleDebug", ApplicationAPK: "app.apk", ApplicationPackage: "com.example",
	})
	if tg.Kind != target.KindAndroidApplication {
		t.Errorf("kind: %v", tg.Kind)
	}
	if len(tg.BuildTasks) != 2 || tg.BuildTasks[0] != "assembleAndroidTest" || tg.BuildTasks[1] != "assembleDebug" {
		t.Errorf("build tasks: %v", tg.BuildTasks)
	}
}

func TestAndroidRequiresDevice(t *testing.T) {
	tg := newAndroidTarget(t, &command.Recorder{}, config.Target{Package: "com.example.test", Task: "t"})
	if err := tg.Run(context.Background()); result.CodeOf(err) != result.EnvPrepare {
		t.Errorf("got %v, want ENV_PREPARE_ERR", err)
	}
}

func TestAndroidInstallTimeoutRestartsDeviceOnce(t *testing.T) {
	rec := &command.Recorder{Handle: func(s command.Spec) ([]byte, error) {
		if s.Args[2] == "install" {
			return nil, &result.Error{Code: result.CallCommand, Message: "install", Cause: context.DeadlineExceeded}
		}
		return nil, nil
	}}
	tg := newAndroidTarget(t, rec, config.Target{Package: "com.example.test", Task: "t"})
	tg.InsertGlobalInfo(target.InfoDeviceName, "emulator-5554")
	restarts := 0
	tg.InsertGlobalInfo(target.InfoRestartDevice, target.RestartFunc(func(ctx context.Context) error {
		restarts++
		return nil
	}))

	err := tg.Run(context.Background())
	if result.CodeOf(err) != result.Install {
		t.Fatalf("got %v, want INSTALL_ERR", err)
	}
	if restarts != 1 {
		t.Errorf("restarts: got %d, want 1", restarts)
	}
	cmds := rec.Commands()
	if len(cmds) != 2 {
		t.Fatalf("expected two install attempts, got %v", cmds)
	}
	if cmds[0] != "adb -s emulator-5554 install -g /out/ui-test.apk" {
		t.Errorf("install command: %q", cmds[0])
	}
	if rec.Calls[0].Timeout == 0 {
		t.Error("install should carry a timeout")
	}
}

func TestAndroidInstallFailureIsNotRetried(t *testing.T) {
	rec := &command.Recorder{Handle: func(s command.Spec) ([]byte, error) {
		return []byte("INSTALL_FAILED_OLDER_SDK"), result.Errf(result.CallCommand, "adb install")
	}}
	tg := newAndroidTarget(t, rec, config.Target{Package: "com.example.test", Task: "t"})
	tg.InsertGlobalInfo(target.InfoDeviceName, "emulator-5554")
	err := tg.Run(context.Background())
	if result.CodeOf(err) != result.Install {
		t.Fatalf("got %v, want INSTALL_ERR", err)
	}
	if len(rec.Calls) != 1 {
		t.Errorf("calls: %v", rec.Commands())
	}
	if !strings.Contains(readLog(t, tg), "INSTALL_FAILED_OLDER_SDK") {
		t.Error("install output should be logged")
	}
}
