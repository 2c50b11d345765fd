package launcher

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"jobpipe/internal/apperrors"
)

func TestExecLaunchCompleted(t *testing.T) {
	var stdout bytes.Buffer
	l := NewExecLauncher()
	l.Stdout = &stdout

	h, err := l.Launch(context.Background(), Spec{
		Name:    "echo",
		Command: []string{"sh", "-c", "echo hello; exit 0"},
		Env:     map[string]string{"JOBPIPE_TEST_VAR": "1"},
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	status, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.State != StateCompleted || status.ExitCode != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Failed() {
		t.Fatal("completed status reported as failed")
	}
	if !strings.Contains(stdout.String(), "hello") {
		t.Fatalf("expected stdout to contain hello, got %q", stdout.String())
	}
}

func TestExecLaunchExitCode(t *testing.T) {
	l := NewExecLauncher()

	h, err := l.Launch(context.Background(), Spec{Command: []string{"sh", "-c", "exit 3"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	status, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.State != StateFailed || status.ExitCode != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if !status.Failed() {
		t.Fatal("failed status not reported as failed")
	}
}

func TestExecLaunchEnvInjection(t *testing.T) {
	var stdout bytes.Buffer
	l := NewExecLauncher()
	l.Stdout = &stdout

	h, err := l.Launch(context.Background(), Spec{
		Command: []string{"sh", "-c", "echo $JOBPIPE_TEST_INJECTED"},
		Env:     map[string]string{"JOBPIPE_TEST_INJECTED": "payload-here"},
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !strings.Contains(stdout.String(), "payload-here") {
		t.Fatalf("expected injected env in output, got %q", stdout.String())
	}
}

func TestExecLaunchRequiresCommand(t *testing.T) {
	l := NewExecLauncher()
	_, err := l.Launch(context.Background(), Spec{})
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExecStop(t *testing.T) {
	l := NewExecLauncher()

	h, err := l.Launch(context.Background(), Spec{Command: []string{"sleep", "60"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	status, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.State != StateCancelled {
		t.Fatalf("expected cancelled, got %+v", status)
	}

	// Stopping again is a no-op.
	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestExecWaitHonorsContext(t *testing.T) {
	l := NewExecLauncher()

	h, err := l.Launch(context.Background(), Spec{Command: []string{"sleep", "60"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer h.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
