// pipe-orchestrator launches one job with the protocol context injected,
// polls its message channel and log files while it runs, and prints the
// collected reports when it exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"jobpipe/internal/bootstrap"
	"jobpipe/internal/channel"
	"jobpipe/internal/config"
	"jobpipe/internal/forward"
	"jobpipe/internal/launcher"
	"jobpipe/internal/launcher/docker"
	"jobpipe/internal/observability"
	"jobpipe/internal/remote"
	"jobpipe/internal/session"
	"jobpipe/internal/transport"
)

func main() {
	level := slog.LevelInfo
	if config.GetBoolEnv("JOBPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var configPath string
	flag.StringVar(&configPath, "config", "", "config file (yaml)")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	code, err := run(cfg, flag.Args())
	if err != nil {
		slog.Error("Run failed", "error", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run(cfg appConfig, command []string) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(command) == 0 && cfg.Image == "" {
		return 0, errors.New("nothing to launch: pass a command after the flags or set image in the config")
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "jobpipe-run-")
		if err != nil {
			return 0, err
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return 0, err
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// Build the bootstrap payload and the environment the job will see.
	payload, err := bootstrap.Build(bootstrap.RunMetadata{RunID: cfg.RunID, JobLabels: cfg.Labels}, nil)
	if err != nil {
		return 0, err
	}
	logger := slog.With("runId", payload.RunID)

	envTransport := bootstrap.NewEnvTransport("")
	if err := bootstrap.Inject(ctx, payload, envTransport); err != nil {
		return 0, err
	}

	messagesPath := filepath.Join(workDir, "messages."+cfg.Codec)
	jobEnv := make(map[string]string, len(envTransport.Vars)+2)
	for k, v := range envTransport.Vars {
		jobEnv[k] = v
	}
	jobEnv[remote.EnvMessagesPath] = messagesPath
	jobEnv[remote.EnvCodec] = cfg.Codec

	// Message channel and log sources, polled by the session.
	stream, err := transport.NewFileStream(messagesPath)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	codec, err := channel.NewCodec(cfg.Codec)
	if err != nil {
		return 0, err
	}

	logSources := make([]session.LogSource, 0, len(cfg.LogFiles))
	logStreams := make([]*transport.FileStream, 0, len(cfg.LogFiles))
	for _, path := range cfg.LogFiles {
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		ls, err := transport.NewFileStream(path)
		if err != nil {
			return 0, err
		}
		logStreams = append(logStreams, ls)
		logSources = append(logSources, session.LogSource{
			Name:   filepath.Base(path),
			Source: ls,
			Output: os.Stdout,
		})
	}
	defer func() {
		for _, ls := range logStreams {
			_ = ls.Close()
		}
	}()

	sess, err := session.New(session.Config{
		Reader:          channel.NewReader(stream, codec),
		LogSources:      logSources,
		LogOutput:       os.Stdout,
		PollInterval:    cfg.PollInterval,
		LogPollInterval: cfg.LogPollInterval,
		RetryBudget:     cfg.RetryBudget,
		Metrics:         metrics,
	})
	if err != nil {
		return 0, err
	}

	var forwarder *forward.Forwarder
	if cfg.ForwardURL != "" {
		forwarder, err = forward.New(forward.Config{
			URL:        cfg.ForwardURL,
			SigningKey: cfg.ForwardKey,
		}, metrics)
		if err != nil {
			return 0, err
		}
	}

	// Launch the job with the payload in its environment.
	var backend launcher.Launcher
	if cfg.Image != "" {
		dockerLauncher, err := docker.NewLauncher(docker.Config{PullImages: cfg.PullImages})
		if err != nil {
			return 0, err
		}
		defer dockerLauncher.Close()
		if err := dockerLauncher.Ready(ctx); err != nil {
			return 0, err
		}
		backend = dockerLauncher
	} else {
		execLauncher := launcher.NewExecLauncher()
		execLauncher.Stdout = os.Stdout
		execLauncher.Stderr = os.Stderr
		backend = execLauncher
	}

	spec := launcher.Spec{
		Name:    payload.RunID,
		Image:   cfg.Image,
		Command: command,
		Env:     jobEnv,
		WorkDir: workDir,
	}
	if cfg.Image != "" {
		spec.Mounts = []launcher.Mount{{Source: workDir}}
	}

	if err := sess.Open(); err != nil {
		return 0, err
	}

	handle, err := backend.Launch(ctx, spec)
	if err != nil {
		closeSession(sess, logger)
		return 0, err
	}
	logger.Info("Job launched", "id", handle.ID(), "messages", messagesPath)

	status, waitErr := handle.Wait(ctx)
	if waitErr != nil {
		// Interrupted: stop the job, then drain whatever it got out.
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := handle.Stop(stopCtx); err != nil {
			logger.Warn("Failed to stop job", "error", err)
		}
		cancel()
		status, _ = handle.Wait(context.Background())
	}

	sessionErr := closeSession(sess, logger)

	results := sess.Results()
	logger.Info("Job finished",
		"state", status.State,
		"exitCode", status.ExitCode,
		"reports", len(results),
	)

	for _, msg := range results {
		printReport(payload.RunID, msg)
		if forwarder != nil {
			if err := forwarder.Forward(payload.RunID, msg); err != nil {
				logger.Warn("Failed to enqueue report", "error", err)
			}
		}
	}

	if forwarder != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := forwarder.Close(drainCtx); err != nil {
			logger.Warn("Forwarder shutdown error", "error", err)
		}
		stats := forwarder.Stats()
		logger.Info("Forwarder stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
			"breakerOpen", stats.BreakerOpen,
		)
	}

	if sessionErr != nil {
		return status.ExitCode, sessionErr
	}
	if status.Failed() && status.ExitCode == 0 {
		return 1, nil
	}
	return status.ExitCode, nil
}

func closeSession(sess *session.Session, logger *slog.Logger) error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		logger.Error("Session closed with error", "error", err)
		return err
	}
	return nil
}

func printReport(runID string, msg channel.Message) {
	switch m := msg.(type) {
	case channel.MaterializationReport:
		slog.Info("Materialization", "runId", runID, "entityKey", m.EntityKey, "partition", m.Partition, "dataVersion", m.DataVersion)
	case channel.AssetCheckReport:
		slog.Info("Asset check", "runId", runID, "entityKey", m.EntityKey, "check", m.CheckName, "passed", m.Passed, "severity", m.Severity)
	case channel.CustomReport:
		slog.Info("Custom report", "runId", runID, "name", m.Name)
	default:
		slog.Info("Report", "runId", runID, "kind", fmt.Sprintf("%T", msg))
	}
}
