// Package docker implements launcher.Launcher using the Docker API. The job
// runs in a single container with the protocol environment injected and the
// working directory bind-mounted so channel and log files stay reachable
// from the orchestrating process.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"jobpipe/internal/apperrors"
	"jobpipe/internal/launcher"
)

const managedByLabel = "jobpipe"

// Config holds Docker backend settings.
type Config struct {
	ExtraHosts []string // extra /etc/hosts entries (e.g. ["callbacks.test:host-gateway"])
	PullImages bool     // pull missing images before launch
}

// Launcher runs jobs as Docker containers.
type Launcher struct {
	client     *client.Client
	extraHosts []string
	pullImages bool
	logger     *slog.Logger
}

// NewLauncher connects to the local Docker daemon.
func NewLauncher(cfg Config) (*Launcher, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Launcher{
		client:     dockerClient,
		extraHosts: cfg.ExtraHosts,
		pullImages: cfg.PullImages,
		logger:     slog.With("component", "launcher", "backend", "docker"),
	}, nil
}

// Ready verifies the daemon is reachable.
func (l *Launcher) Ready(ctx context.Context) error {
	if _, err := l.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Close releases the client. Running containers are not stopped.
func (l *Launcher) Close() error {
	return l.client.Close()
}

// Launch creates and starts the job container.
func (l *Launcher) Launch(ctx context.Context, spec launcher.Spec) (launcher.Handle, error) {
	if spec.Image == "" {
		return nil, apperrors.Configuration("image", "docker launcher requires an image")
	}

	if l.pullImages {
		if err := l.pullImageIfNeeded(ctx, spec.Image); err != nil {
			return nil, fmt.Errorf("failed to pull image %q: %w", spec.Image, err)
		}
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Command,
		Env:        env,
		WorkingDir: spec.WorkDir,
		Labels: map[string]string{
			"run.name":   spec.Name,
			"managed-by": managedByLabel,
		},
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		target := m.Target
		if target == "" {
			target = m.Source
		}
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: m.Source,
			Target: target,
		})
	}

	hostConfig := &container.HostConfig{
		Mounts:     mounts,
		ExtraHosts: l.extraHosts,
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		l.removeContainer(context.WithoutCancel(ctx), resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	l.logger.Info("Job started", "name", spec.Name, "containerId", resp.ID[:12])
	return &dockerHandle{launcher: l, containerID: resp.ID}, nil
}

func (l *Launcher) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := l.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := l.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (l *Launcher) removeContainer(ctx context.Context, containerID string) {
	stopTimeout := 10
	_ = l.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})
	_ = l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

type dockerHandle struct {
	launcher    *Launcher
	containerID string
	stopped     bool
}

func (h *dockerHandle) ID() string {
	return h.containerID
}

func (h *dockerHandle) Wait(ctx context.Context) (launcher.Status, error) {
	statusCh, errCh := h.launcher.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return launcher.Status{State: launcher.StateRunning}, ctx.Err()
	case err := <-errCh:
		return launcher.Status{State: launcher.StateFailed, ExitCode: -1}, err
	case result := <-statusCh:
		if result.Error != nil {
			return launcher.Status{State: launcher.StateFailed, ExitCode: int(result.StatusCode)},
				fmt.Errorf("%s", result.Error.Message)
		}
		status := launcher.Status{ExitCode: int(result.StatusCode)}
		switch {
		case h.stopped:
			status.State = launcher.StateCancelled
		case result.StatusCode == 0:
			status.State = launcher.StateCompleted
		default:
			status.State = launcher.StateFailed
		}
		return status, nil
	}
}

func (h *dockerHandle) Stop(ctx context.Context) error {
	h.stopped = true
	h.launcher.removeContainer(ctx, h.containerID)
	return nil
}

// Logs copies the container's combined output to w until the container
// exits or ctx is cancelled. Useful when the job writes to stdout instead
// of a mounted log file.
func (h *dockerHandle) Logs(ctx context.Context, w io.Writer) error {
	logs, err := h.launcher.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return err
	}
	defer logs.Close()

	_, err = io.Copy(w, logs)
	return err
}

var _ launcher.Launcher = (*Launcher)(nil)
