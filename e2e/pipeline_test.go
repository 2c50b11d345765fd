//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"jobpipe/internal/bootstrap"
	"jobpipe/internal/channel"
	"jobpipe/internal/launcher"
	"jobpipe/internal/remote"
	"jobpipe/internal/session"
	"jobpipe/internal/testutil"
	"jobpipe/internal/transport"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestSubprocessRoundTrip launches a shell job that appends raw channel
// records and a log file, and verifies the session sees all of it.
func TestSubprocessRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	messages := filepath.Join(dir, "messages.jsonl")
	logFile := filepath.Join(dir, "job.log")

	payload, err := bootstrap.Build(bootstrap.RunMetadata{RunID: "e2e-subprocess"}, nil)
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	envTransport := bootstrap.NewEnvTransport("")
	if err := bootstrap.Inject(ctx, payload, envTransport); err != nil {
		t.Fatalf("inject: %v", err)
	}

	stream, err := transport.NewFileStream(messages)
	if err != nil {
		t.Fatalf("file stream: %v", err)
	}
	defer stream.Close()
	logStream, err := transport.NewFileStream(logFile)
	if err != nil {
		t.Fatalf("log stream: %v", err)
	}
	defer logStream.Close()
	codec, _ := channel.NewCodec("jsonl")

	var logOut, tailOut lockedBuffer
	sess, err := session.New(session.Config{
		Reader:          channel.NewReader(stream, codec),
		LogSources:      []session.LogSource{{Name: "job.log", Source: logStream, Output: &tailOut}},
		LogOutput:       &logOut,
		PollInterval:    20 * time.Millisecond,
		LogPollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := sess.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	script := fmt.Sprintf(`
echo '{"seq":1,"kind":"log","ts":"2026-01-01T00:00:00Z","log":{"level":"info","text":"job says hello"}}' >> %[1]s
echo 'raw line one' >> %[2]s
echo '{"seq":2,"kind":"materialization","ts":"2026-01-01T00:00:01Z","materialization":{"entityKey":"users"}}' >> %[1]s
echo 'raw line two' >> %[2]s
`, messages, logFile)

	l := launcher.NewExecLauncher()
	h, err := l.Launch(ctx, launcher.Spec{
		Command: []string{"sh", "-c", script},
		Env:     envTransport.Vars,
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	status, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.State != launcher.StateCompleted {
		t.Fatalf("unexpected status: %+v", status)
	}

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		t.Fatalf("close: %v", err)
	}

	results := sess.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 buffered report, got %d: %v", len(results), results)
	}
	mat, ok := results[0].(channel.MaterializationReport)
	if !ok || mat.EntityKey != "users" {
		t.Fatalf("unexpected report: %+v", results[0])
	}

	if got := logOut.String(); !bytes.Contains([]byte(got), []byte("hello")) {
		t.Fatalf("log record not forwarded: %q", got)
	}
	tail := tailOut.String()
	if !bytes.Contains([]byte(tail), []byte("raw line one")) || !bytes.Contains([]byte(tail), []byte("raw line two")) {
		t.Fatalf("log file not tailed: %q", tail)
	}
}

// TestRemoteSessionRoundTrip runs the remote context in-process against the
// same files a real launch would use, including payload pickup from the
// process environment.
func TestRemoteSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	messages := filepath.Join(dir, "messages.jsonl")

	payload, err := bootstrap.Build(bootstrap.RunMetadata{
		RunID:     "e2e-remote",
		JobLabels: map[string]string{"team": "data"},
	}, map[string]any{"shard": "7"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	envTransport := bootstrap.NewEnvTransport("")
	if err := bootstrap.Inject(ctx, payload, envTransport); err != nil {
		t.Fatalf("inject: %v", err)
	}
	t.Setenv(bootstrap.DefaultEnvVar, envTransport.Vars[bootstrap.DefaultEnvVar])
	t.Setenv(remote.EnvMessagesPath, messages)
	t.Setenv(remote.EnvCodec, "jsonl")

	rc, err := remote.Open(ctx)
	if err != nil {
		t.Fatalf("remote open: %v", err)
	}
	if rc.RunID() != "e2e-remote" {
		t.Fatalf("unexpected run id %q", rc.RunID())
	}
	if v, ok := rc.Extra("shard"); !ok || v != "7" {
		t.Fatalf("extras did not survive the trip: %v %v", v, ok)
	}

	stream, err := transport.NewFileStream(messages)
	if err != nil {
		t.Fatalf("file stream: %v", err)
	}
	defer stream.Close()
	codec, _ := channel.NewCodec("jsonl")

	sess, err := session.New(session.Config{
		Reader:       channel.NewReader(stream, codec),
		LogOutput:    os.Stdout,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := sess.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := rc.ReportMaterialization(ctx, channel.MaterializationReport{
		EntityKey: "orders",
		Metadata:  map[string]channel.MetadataValue{"rows": channel.MetadataInt(9)},
	}); err != nil {
		t.Fatalf("report: %v", err)
	}
	if err := rc.ReportAssetCheck(ctx, channel.AssetCheckReport{
		EntityKey: "orders",
		CheckName: "non_empty",
		Passed:    true,
	}); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("remote close: %v", err)
	}

	testutil.MustWaitFor(t, func() bool {
		return sess.Cursor() >= 2
	}, testutil.WithTimeout(5*time.Second))

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		t.Fatalf("close: %v", err)
	}

	results := sess.Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(results))
	}
	if _, ok := results[0].(channel.MaterializationReport); !ok {
		t.Fatalf("expected materialization first, got %T", results[0])
	}
	if check, ok := results[1].(channel.AssetCheckReport); !ok || !check.Passed {
		t.Fatalf("unexpected check report: %+v", results[1])
	}
}
