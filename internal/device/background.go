package device

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// background is a long-running helper process (emulator, logcat) whose
// output goes to a file.
type background struct {
	cmd     *exec.Cmd
	logFile *os.File
	done    chan struct{}
}

func startBackground(logFile *os.File, name string, args ...string) (*background, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	b := &background{cmd: cmd, logFile: logFile, done: make(chan struct{})}
	go func() {
		cmd.Wait()
		close(b.done)
	}()
	return b, nil
}

func (b *background) exited() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *background) Stop() error {
	if b == nil {
		return nil
	}
	if !b.exited() {
		b.cmd.Process.Kill()
		select {
		case <-b.done:
		case <-time.After(5 * time.Second):
		}
	}
	return b.logFile.Close()
}
