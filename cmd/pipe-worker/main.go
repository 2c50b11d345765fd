// pipe-worker is a small job binary for exercising the protocol end to end:
// it loads the injected context, emits a few log records and reports over the
// message channel, and exits. Real jobs embed the remote package directly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jobpipe/internal/apperrors"
	"jobpipe/internal/channel"
	"jobpipe/internal/config"
	"jobpipe/internal/remote"
)

func main() {
	level := slog.LevelInfo
	if config.GetBoolEnv("JOBPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var (
		entityKey string
		checkName string
		logFile   string
		fail      bool
	)
	flag.StringVar(&entityKey, "entity", "demo/table", "entity key to report a materialization for")
	flag.StringVar(&checkName, "check", "", "asset check name to report (empty skips the check)")
	flag.StringVar(&logFile, "log-file", "", "file to append raw log lines to, for tail testing")
	flag.BoolVar(&fail, "fail", false, "exit non-zero after reporting")
	flag.Parse()

	if err := run(entityKey, checkName, logFile, fail); err != nil {
		slog.Error("Worker failed", "error", err)
		if errors.Is(err, apperrors.ErrMissingContext) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	if fail {
		os.Exit(3)
	}
}

func run(entityKey, checkName, logFile string, fail bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc, err := remote.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := rc.Log(ctx, "info", fmt.Sprintf("worker started, run %s", rc.RunID())); err != nil {
		return err
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		fmt.Fprintln(f, "worker raw log line")
		if err := f.Close(); err != nil {
			return err
		}
	}

	report := channel.MaterializationReport{
		EntityKey: entityKey,
		Metadata: map[string]channel.MetadataValue{
			"rows": channel.MetadataInt(42),
		},
	}
	if err := rc.ReportMaterialization(ctx, report); err != nil {
		return err
	}

	if checkName != "" {
		check := channel.AssetCheckReport{
			EntityKey: entityKey,
			CheckName: checkName,
			Passed:    !fail,
		}
		if err := rc.ReportAssetCheck(ctx, check); err != nil {
			return err
		}
	}

	return rc.Log(ctx, "info", "worker done")
}
