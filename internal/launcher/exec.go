package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"jobpipe/internal/apperrors"
)

// ExecLauncher runs jobs as local subprocesses. The spec's env is merged
// over the parent environment so the payload variables reach the child.
type ExecLauncher struct {
	// Stdout and Stderr receive the child's output. Nil discards it; jobs
	// are expected to write captured logs to files the session tails.
	Stdout io.Writer
	Stderr io.Writer

	logger *slog.Logger
}

// NewExecLauncher creates a subprocess launcher.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{logger: slog.With("component", "launcher", "backend", "exec")}
}

// Launch starts the command and returns immediately.
func (l *ExecLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	if len(spec.Command) == 0 {
		return nil, apperrors.Configuration("command", "exec launcher requires a command")
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", spec.Command[0], err)
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go h.wait()

	l.logger.Info("Job started", "name", spec.Name, "pid", cmd.Process.Pid)
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu     sync.Mutex
	status Status
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	switch {
	case err == nil:
		h.status = Status{State: StateCompleted}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.status = Status{State: StateFailed, ExitCode: exitErr.ExitCode()}
		} else {
			h.status = Status{State: StateFailed, ExitCode: -1}
		}
	}
	h.mu.Unlock()
	close(h.done)
}

func (h *execHandle) ID() string {
	return strconv.Itoa(h.cmd.Process.Pid)
}

func (h *execHandle) Wait(ctx context.Context) (Status, error) {
	select {
	case <-ctx.Done():
		return Status{State: StateRunning}, ctx.Err()
	case <-h.done:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, nil
}

func (h *execHandle) Stop(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
	}

	h.mu.Lock()
	h.status.State = StateCancelled
	h.mu.Unlock()
	return nil
}
