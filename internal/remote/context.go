// Package remote is the in-job side of the protocol: it loads the bootstrap
// payload, opens the message channel writer, and exposes typed report
// emitters to the job's business logic.
package remote

import (
	"context"
	"log/slog"
	"sync"

	"jobpipe/internal/apperrors"
	"jobpipe/internal/bootstrap"
	"jobpipe/internal/channel"
	"jobpipe/internal/config"
	"jobpipe/internal/transport"
)

// Environment contract between the launcher and the remote process, set
// alongside the bootstrap payload variable.
const (
	EnvMessagesPath = "JOBPIPE_MESSAGES_PATH"
	EnvCodec        = "JOBPIPE_CODEC"
)

// Config overrides the environment-derived defaults, mostly for tests and
// same-process launches.
type Config struct {
	Bootstrap bootstrap.Transport // default: env transport on JOBPIPE_CONTEXT
	Channel   transport.Stream    // default: file stream at $JOBPIPE_MESSAGES_PATH
	Codec     channel.Codec       // default: $JOBPIPE_CODEC or jsonl
}

// Context is the remote process's handle on the protocol: its run identity
// plus the channel writer. One per process, opened once, closed once.
type Context struct {
	payload *bootstrap.Payload
	writer  *channel.Writer
	stream  transport.Stream
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open loads the bootstrap payload and opens the message channel using the
// environment contract. A missing payload is fatal: user code must not run
// without a run identity, so callers surface this as a job failure.
func Open(ctx context.Context) (*Context, error) {
	return OpenWith(ctx, Config{})
}

// OpenWith is Open with explicit transports.
func OpenWith(ctx context.Context, cfg Config) (*Context, error) {
	bt := cfg.Bootstrap
	if bt == nil {
		bt = bootstrap.NewEnvTransport("")
	}

	payload, err := bootstrap.Load(ctx, bt)
	if err != nil {
		return nil, err
	}

	stream := cfg.Channel
	if stream == nil {
		path := config.GetEnv(EnvMessagesPath, "")
		if path == "" {
			return nil, apperrors.Configuration(EnvMessagesPath, "message channel path is not set")
		}
		fs, err := transport.NewFileStream(path)
		if err != nil {
			return nil, err
		}
		stream = fs
	}

	codec := cfg.Codec
	if codec == nil {
		codec, err = channel.NewCodec(config.GetEnv(EnvCodec, ""))
		if err != nil {
			return nil, apperrors.Configuration(EnvCodec, err.Error())
		}
	}

	c := &Context{
		payload: payload,
		writer:  channel.NewWriter(stream, codec),
		stream:  stream,
		logger:  slog.With("component", "remote", "runId", payload.RunID),
	}
	c.logger.Info("Remote context opened", "channel", stream.Name(), "codec", codec.Name())
	return c, nil
}

// RunID returns the launch's run identity.
func (c *Context) RunID() string {
	return c.payload.RunID
}

// Labels returns the job labels from the payload.
func (c *Context) Labels() map[string]string {
	return c.payload.JobLabels
}

// Extra returns one caller-provided extra and whether it was present.
func (c *Context) Extra(key string) (any, bool) {
	v, ok := c.payload.Extras[key]
	return v, ok
}

// Log appends a log record to the channel.
func (c *Context) Log(ctx context.Context, level, text string) error {
	return c.append(ctx, channel.LogRecord{Level: level, Text: text})
}

// ReportMaterialization appends a materialization report to the channel.
func (c *Context) ReportMaterialization(ctx context.Context, report channel.MaterializationReport) error {
	return c.append(ctx, report)
}

// ReportAssetCheck appends an asset check report to the channel.
func (c *Context) ReportAssetCheck(ctx context.Context, report channel.AssetCheckReport) error {
	return c.append(ctx, report)
}

// ReportCustom appends a custom report to the channel.
func (c *Context) ReportCustom(ctx context.Context, report channel.CustomReport) error {
	return c.append(ctx, report)
}

func (c *Context) append(ctx context.Context, msg channel.Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.Configuration("context", "remote context is closed")
	}
	c.mu.Unlock()

	_, err := c.writer.Append(ctx, msg)
	return err
}

// Close flushes and releases the channel. Idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if closer, ok := c.stream.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
