//go:build integration

package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jobpipe/internal/bootstrap"
	"jobpipe/internal/channel"
	"jobpipe/internal/launcher"
	"jobpipe/internal/testutil"
	"jobpipe/internal/transport"
)

func TestDockerLaunchCompleted(t *testing.T) {
	ctx := context.Background()

	l, err := NewLauncher(Config{PullImages: true})
	if err != nil {
		t.Fatalf("new launcher: %v", err)
	}
	defer l.Close()

	if err := l.Ready(ctx); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}

	h, err := l.Launch(ctx, launcher.Spec{
		Name:    fmt.Sprintf("launch-test-%d", time.Now().UnixNano()),
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "echo hello && exit 0"},
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer h.Stop(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	status, err := h.Wait(waitCtx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.State != launcher.StateCompleted || status.ExitCode != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestDockerLaunchChannelRoundTrip(t *testing.T) {
	ctx := context.Background()

	l, err := NewLauncher(Config{PullImages: true})
	if err != nil {
		t.Fatalf("new launcher: %v", err)
	}
	defer l.Close()

	if err := l.Ready(ctx); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}

	dir := t.TempDir()
	messages := filepath.Join(dir, "messages.jsonl")

	payload, err := bootstrap.Build(bootstrap.RunMetadata{RunID: "docker-rt"}, nil)
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	envTransport := bootstrap.NewEnvTransport("")
	if err := bootstrap.Inject(ctx, payload, envTransport); err != nil {
		t.Fatalf("inject payload: %v", err)
	}

	// The job appends one raw channel record; a real job would use the
	// remote package, but this keeps the image dependency-free.
	record := `{"seq":1,"kind":"log","ts":"2026-01-01T00:00:00Z","log":{"level":"info","text":"from container"}}`
	h, err := l.Launch(ctx, launcher.Spec{
		Name:    fmt.Sprintf("channel-test-%d", time.Now().UnixNano()),
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", fmt.Sprintf("echo '%s' >> %s", record, messages)},
		Env: envTransport.Vars,
		Mounts: []launcher.Mount{{Source: dir}},
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer h.Stop(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if _, err := h.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	stream, err := transport.NewFileStream(messages)
	if err != nil {
		t.Fatalf("file stream: %v", err)
	}
	defer stream.Close()
	codec, _ := channel.NewCodec("jsonl")
	reader := channel.NewReader(stream, codec)

	var envs []*channel.Envelope
	testutil.MustWaitFor(t, func() bool {
		got, _, err := reader.Poll(ctx)
		if err != nil {
			return false
		}
		envs = append(envs, got...)
		return len(envs) > 0
	}, testutil.WithTimeout(10*time.Second), testutil.WithInterval(100*time.Millisecond))

	if envs[0].Kind != channel.KindLog {
		t.Fatalf("expected log record, got %s", envs[0].Kind)
	}
	if !strings.Contains(envs[0].Log.Text, "from container") {
		t.Fatalf("unexpected log text: %q", envs[0].Log.Text)
	}

	if _, err := os.Stat(messages); err != nil {
		t.Fatalf("message file missing: %v", err)
	}
}
