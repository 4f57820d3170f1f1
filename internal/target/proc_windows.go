//go:build windows

package target

import (
	"os"
	"os/exec"
)

func configureProcess(cmd *exec.Cmd) {}

func exitStatus(state *os.ProcessState) int {
	if state == nil {
		return exitUnknown
	}
	return state.ExitCode()
}

func terminateProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func killProcess(cmd *exec.Cmd) error {
	return terminateProcess(cmd)
}
