package driver

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// containerWorkdir is where the task workdir is mounted inside the driver
// container; the driver writes screenshots under it as it would locally.
const containerWorkdir = "/workspace"

// DockerDriver runs the driver image in a sandboxed container with the task
// workdir bind-mounted.
type DockerDriver struct {
	client *client.Client
	image  string
}

// NewDockerDriver creates a Docker-based driver.
func NewDockerDriver(driverImage string) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &ExecutionError{Kind: KindDriverInit, Err: fmt.Errorf("create docker client: %w", err)}
	}
	return &DockerDriver{client: cli, image: driverImage}, nil
}

// Run implements Driver.Run using Docker containers.
func (d *DockerDriver) Run(ctx context.Context, in Input) (*Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if in.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	// Pull only when the image is missing locally.
	if _, _, err := d.client.ImageInspectWithRaw(runCtx, d.image); err != nil {
		reader, err := d.client.ImagePull(runCtx, d.image, image.PullOptions{})
		if err != nil {
			return nil, &ExecutionError{Kind: KindDriverInit, Err: fmt.Errorf("pull image %s: %w", d.image, err)}
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	containerConfig := &container.Config{
		Image:      d.image,
		Cmd:        []string{in.TaskText},
		Env:        []string{"TASK_DESCRIPTION=" + in.TaskText},
		WorkingDir: containerWorkdir,
	}
	hostConfig := &container.HostConfig{
		Binds:      []string{in.Workdir + ":" + containerWorkdir},
		AutoRemove: false,
	}

	created, err := d.client.ContainerCreate(runCtx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, &ExecutionError{Kind: KindDriverInit, Err: fmt.Errorf("create container: %w", err)}
	}
	defer d.client.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})

	start := time.Now()
	if err := d.client.ContainerStart(runCtx, created.ID, container.StartOptions{}); err != nil {
		return nil, &ExecutionError{Kind: KindDriverRuntime, Err: fmt.Errorf("start container: %w", err)}
	}

	statusCh, errCh := d.client.ContainerWait(runCtx, created.ID, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case err := <-errCh:
		if runCtx.Err() == context.DeadlineExceeded {
			d.stop(created.ID)
			return nil, ErrTimeout
		}
		return nil, &ExecutionError{Kind: KindDriverRuntime, Err: err}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
		if status.Error != nil {
			return nil, &ExecutionError{Kind: KindDriverRuntime, Err: fmt.Errorf("%s", status.Error.Message)}
		}
	case <-runCtx.Done():
		d.stop(created.ID)
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, &ExecutionError{Kind: KindDriverRuntime, Err: runCtx.Err()}
	}

	duration := time.Since(start)

	stdout, err := d.readLogs(created.ID)
	if err != nil {
		return nil, &ExecutionError{Kind: KindDriverRuntime, Err: fmt.Errorf("read logs: %w", err)}
	}

	return &Result{
		Stdout:   stdout,
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

func (d *DockerDriver) stop(containerID string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	grace := int(stopGrace.Seconds())
	_ = d.client.ContainerStop(stopCtx, containerID, container.StopOptions{Timeout: &grace})
}

func (d *DockerDriver) readLogs(containerID string) (string, error) {
	logCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc, err := d.client.ContainerLogs(logCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: false,
	})
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var out, errOut stringWriter
	if _, err := stdcopy.StdCopy(&out, &errOut, rc); err != nil {
		return "", err
	}
	return out.String(), nil
}

type stringWriter struct {
	buf []byte
}

func (w *stringWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *stringWriter) String() string {
	return string(w.buf)
}
