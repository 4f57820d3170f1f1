package target

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"

	"github.com/signalnine/crucible/internal/result"
)

const (
	containerBinDir  = "/crucible/bin"
	containerWorkDir = "/crucible/work"
	containerOutDir  = "/crucible/out"
)

// dockerVariant runs the built binary inside a container image, with the
// binary's directory, the working directory and the run root bind-mounted.
type dockerVariant struct {
	image string
}

func (d *dockerVariant) init(t *Target) error {
	if t.Params.Image == "" {
		return result.Errf(result.TargetConfig, "%s: image is required for docker targets", t.Name)
	}
	d.image = t.Params.Image
	return nil
}

func (d *dockerVariant) containerEnv(t *Target) []string {
	env := append([]string(nil), t.Env...)
	if t.Coverage {
		env = append(env, "LLVM_PROFILE_FILE="+containerOutDir+"/"+t.Name+".profraw")
	}
	return env
}

func (d *dockerVariant) start(ctx context.Context, t *Target, logf *os.File) (process, error) {
	if t.TargetPath == "" {
		return nil, result.Errf(result.TargetRun, "%s has not been built", t.Name)
	}
	binDir, err := filepath.Abs(filepath.Dir(t.TargetPath))
	if err != nil {
		return nil, result.Wrap(result.TargetRun, err, "resolving binary dir")
	}
	workDir, err := filepath.Abs(t.Cwd)
	if err != nil {
		return nil, result.Wrap(result.TargetRun, err, "resolving cwd")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, result.Wrap(result.EnvPrepare, err, "creating docker client")
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: binDir, Target: containerBinDir, ReadOnly: true},
			{Type: mount.TypeBind, Source: workDir, Target: containerWorkDir},
			{Type: mount.TypeBind, Source: t.layout.Root, Target: containerOutDir},
		},
		Init: &initTrue,
	}
	containerCfg := &container.Config{
		Image:      d.image,
		Cmd:        append([]string{containerBinDir + "/" + filepath.Base(t.TargetPath)}, t.Args...),
		Env:        d.containerEnv(t),
		WorkingDir: containerWorkDir,
		Tty:        true,
		User:       fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		Labels:     map[string]string{"crucible": "true", "crucible.target": t.Name},
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		cli.Close()
		return nil, result.Wrap(result.TargetRun, err, "creating container for "+t.Name)
	}
	p := &containerProcess{cli: cli, id: createResp.ID, logf: logf, done: make(chan struct{})}
	if _, err := cli.ContainerStart(ctx, p.id, client.ContainerStartOptions{}); err != nil {
		p.remove()
		return nil, result.Wrap(result.TargetRun, err, "starting container for "+t.Name)
	}
	go p.wait()
	return p, nil
}

func (d *dockerVariant) finish(ctx context.Context, t *Target) error {
	return nil
}

func (d *dockerVariant) markers() (errs, crashes []string) {
	return []string{"FAILURES!!!"}, nil
}

func (d *dockerVariant) rawCoverage(t *Target) string {
	return t.layout.ProfilePath(t.Name)
}

type containerProcess struct {
	cli  *client.Client
	id   string
	logf *os.File
	done chan struct{}
	code int
}

func (p *containerProcess) wait() {
	defer close(p.done)
	defer p.logf.Close()
	defer p.remove()

	p.code = exitUnknown
	waitResult := p.cli.ContainerWait(context.Background(), p.id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
wait:
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				fmt.Fprintf(p.logf, "waiting for container: %v\n", err)
				break wait
			}
		case status := <-waitResult.Result:
			p.code = containerExitCode(int(status.StatusCode))
			break wait
		}
	}

	logReader, _ := p.cli.ContainerLogs(context.Background(), p.id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if logReader != nil {
		io.Copy(p.logf, logReader)
		logReader.Close()
	}
}

func (p *containerProcess) remove() {
	p.cli.ContainerRemove(context.Background(), p.id, client.ContainerRemoveOptions{Force: true})
	p.cli.Close()
}

// containerExitCode maps the 128+N status reported for a signal death inside
// the container to -N, matching host processes.
func containerExitCode(code int) int {
	if code > 128 && code < 128+65 {
		return -(code - 128)
	}
	return code
}

func (p *containerProcess) Pid() int {
	return 0
}

func (p *containerProcess) Done() <-chan struct{} {
	return p.done
}

func (p *containerProcess) ExitCode() int {
	return p.code
}

func (p *containerProcess) Terminate() error {
	p.cli.ContainerKill(context.Background(), p.id, client.ContainerKillOptions{Signal: "SIGTERM"})
	return nil
}

func (p *containerProcess) Kill() error {
	p.cli.ContainerKill(context.Background(), p.id, client.ContainerKillOptions{Signal: "SIGKILL"})
	return nil
}
