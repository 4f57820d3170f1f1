package target

import (
	"os"
	"os/exec"
)

// process is a running attempt of a target, on the host or elsewhere.
type process interface {
	Pid() int
	Done() <-chan struct{}
	// ExitCode is valid once Done is closed.
	ExitCode() int
	Terminate() error
	Kill() error
}

type localProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	code int
}

// startLocal spawns name in its own process group with stdout and stderr
// going to logf. logf is closed when the process exits.
func startLocal(name string, args []string, dir string, env []string, logf *os.File) (*localProcess, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = logf
	cmd.Stderr = logf
	configureProcess(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &localProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		cmd.Wait()
		p.code = exitStatus(cmd.ProcessState)
		logf.Close()
		close(p.done)
	}()
	return p, nil
}

func (p *localProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *localProcess) Done() <-chan struct{} {
	return p.done
}

func (p *localProcess) ExitCode() int {
	return p.code
}

func (p *localProcess) Terminate() error {
	return terminateProcess(p.cmd)
}

func (p *localProcess) Kill() error {
	return killProcess(p.cmd)
}
