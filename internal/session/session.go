// Package session ties context injection, message polling, and log tailing
// together for one job invocation shepherded by the orchestrator.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"jobpipe/internal/apperrors"
	"jobpipe/internal/channel"
	"jobpipe/internal/logtail"
	"jobpipe/internal/transport"
)

// State is the session lifecycle state. Transitions are forward-only:
// Created -> Open -> Closed.
type State int

// Lifecycle states.
const (
	Created State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Recorder is an optional interface for recording session metrics.
type Recorder interface {
	RecordPoll(ctx context.Context, source string, decoded, warnings int, durationSeconds float64)
	RecordPollError(ctx context.Context, source string)
	RecordLogBytes(ctx context.Context, source string, n int)
	RecordSessionOpened(ctx context.Context)
	RecordSessionClosed(ctx context.Context)
	RecordResultsBuffered(ctx context.Context, delta int)
}

// LogSource binds one remote log source to one local output stream.
type LogSource struct {
	Name   string
	Source transport.Stream
	Output io.Writer
}

// Config holds session configuration.
type Config struct {
	Reader          *channel.Reader // message channel reader (required)
	LogSources      []LogSource     // remote log sources to tail
	LogOutput       io.Writer       // destination for decoded LogRecord messages (default os.Stdout)
	PollInterval    time.Duration   // message poller tick (default 1s)
	LogPollInterval time.Duration   // log tailer tick (default 2s)
	RetryBudget     int             // consecutive transient failures before fatal (default 5)
	Metrics         Recorder        // optional
}

// Session owns the cursor, the per-source log offsets, and a FIFO of buffered
// decoded reports for one job invocation. Background pollers feed it while
// Open; callers drain it with Results. The buffered queue has a single
// producer (the message poller) and is meant for single-threaded consumption.
type Session struct {
	reader   *channel.Reader
	tails    []*logtail.Reader
	logOut   io.Writer
	interval time.Duration
	logEvery time.Duration
	budget   int
	metrics  Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	results  []channel.Message
	failures int   // consecutive message-poll transport failures
	fatal    error // set when the retry budget is exhausted

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a session in the Created state. No I/O happens until Open.
func New(cfg Config) (*Session, error) {
	if cfg.Reader == nil {
		return nil, apperrors.Configuration("reader", "session requires a message channel reader")
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	logEvery := cfg.LogPollInterval
	if logEvery <= 0 {
		logEvery = 2 * time.Second
	}
	budget := cfg.RetryBudget
	if budget <= 0 {
		budget = 5
	}
	logOut := cfg.LogOutput
	if logOut == nil {
		logOut = os.Stdout
	}

	tails := make([]*logtail.Reader, 0, len(cfg.LogSources))
	for _, src := range cfg.LogSources {
		if src.Source == nil || src.Output == nil {
			return nil, apperrors.Configuration("logSources", "log source requires both a source and an output stream")
		}
		tails = append(tails, logtail.NewReader(src.Name, src.Source, src.Output))
	}

	return &Session{
		reader:   cfg.Reader,
		tails:    tails,
		logOut:   logOut,
		interval: interval,
		logEvery: logEvery,
		budget:   budget,
		metrics:  cfg.Metrics,
		logger:   slog.With("component", "session"),
	}, nil
}

// Open starts the message poller and one poller per log source, each on its
// own timer. Idempotent: opening an Open session is a no-op that leaves
// cursors and offsets untouched. Opening a Closed session is an error; the
// lifecycle only moves forward.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Open:
		return nil
	case Closed:
		return apperrors.Configuration("state", "session is closed and cannot be reopened")
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = group

	group.Go(func() error {
		return s.messageLoop(ctx)
	})
	for _, tail := range s.tails {
		group.Go(func() error {
			s.logLoop(ctx, tail)
			return nil
		})
	}

	s.state = Open
	if s.metrics != nil {
		s.metrics.RecordSessionOpened(ctx)
	}
	s.logger.Info("Session opened", "logSources", len(s.tails), "pollInterval", s.interval)
	return nil
}

// Results returns and clears the buffered decoded reports, in arrival order.
// Valid in any state; before Open it returns nil. LogRecord messages are
// never buffered here - they go to the bound output stream as decoded.
//
// Callers must invoke Results at least once after Close: records captured by
// the final drain are discarded with the session otherwise.
func (s *Session) Results() []channel.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.results
	s.results = nil
	if s.metrics != nil && len(out) > 0 {
		s.metrics.RecordResultsBuffered(context.Background(), -len(out))
	}
	return out
}

// Close stops all pollers, performs exactly one more synchronous poll of the
// message channel and every log source to capture records written after the
// last tick, and transitions to Closed. Idempotent. Returns the fatal
// transport error if the retry budget was exhausted while Open.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Closed {
		err := s.fatal
		s.mu.Unlock()
		return err
	}
	wasOpen := s.state == Open
	s.state = Closed
	cancel, group := s.cancel, s.group
	s.mu.Unlock()

	if wasOpen {
		cancel()
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			// Poller already recorded the fatal error; nothing more to do.
			s.logger.Warn("Poller exited with error", "error", err)
		}
	}

	// Final drain: one synchronous poll per source now that all pollers have
	// stopped.
	if err := s.pollMessages(ctx); err != nil {
		s.logger.Warn("Final message drain failed", "error", err)
	}
	for _, tail := range s.tails {
		if _, err := tail.PollOnce(ctx); err != nil {
			s.logger.Warn("Final log drain failed", "source", tail.Name(), "error", err)
		}
	}

	if s.metrics != nil && wasOpen {
		s.metrics.RecordSessionClosed(ctx)
	}

	s.mu.Lock()
	err := s.fatal
	s.mu.Unlock()

	s.logger.Info("Session closed", "cursor", s.reader.Cursor())
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the fatal transport error recorded while polling, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// Cursor returns the highest message sequence number consumed so far.
func (s *Session) Cursor() uint64 {
	return s.reader.Cursor()
}

// messageLoop polls the channel on a timer until cancelled or fatal.
func (s *Session) messageLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.pollMessages(ctx); err != nil {
				s.mu.Lock()
				s.failures++
				failures := s.failures
				var fatal error
				if failures >= s.budget {
					fatal = apperrors.Transport("session.poll", "message channel", err)
					s.fatal = fatal
				}
				s.mu.Unlock()

				if s.metrics != nil {
					s.metrics.RecordPollError(ctx, "messages")
				}
				if fatal != nil {
					s.logger.Error("Retry budget exhausted, stopping pollers", "failures", failures)
					return fatal
				}
				s.logger.Warn("Transient poll failure, retrying next tick", "failures", failures, "error", err)
			}
		}
	}
}

// pollMessages performs one bounded poll: decode new records, forward log
// records to the bound output, buffer structured reports.
func (s *Session) pollMessages(ctx context.Context) error {
	start := time.Now()
	envs, warnings, err := s.reader.Poll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()

	for _, warn := range warnings {
		s.logger.Warn("Skipping malformed record", "error", warn)
	}

	var buffered int
	for _, env := range envs {
		msg, err := env.Message()
		if err != nil {
			// Decode already validated the envelope; treat disagreement as
			// one more malformed record.
			s.logger.Warn("Skipping malformed record", "seq", env.Seq, "error", err)
			continue
		}
		if log, ok := msg.(channel.LogRecord); ok {
			if _, err := io.WriteString(s.logOut, log.Text+"\n"); err != nil {
				s.logger.Warn("Failed to forward log record", "seq", env.Seq, "error", err)
			}
			continue
		}
		s.mu.Lock()
		s.results = append(s.results, msg)
		s.mu.Unlock()
		buffered++
	}

	if s.metrics != nil {
		s.metrics.RecordPoll(ctx, "messages", len(envs), len(warnings), time.Since(start).Seconds())
		s.metrics.RecordResultsBuffered(ctx, buffered)
	}
	return nil
}

// logLoop tails one log source on a timer until cancelled. Log forwarding is
// best effort: failures are logged and retried next tick, and never count
// against the session's retry budget.
func (s *Session) logLoop(ctx context.Context, tail *logtail.Reader) {
	ticker := time.NewTicker(s.logEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tail.PollOnce(ctx)
			if err != nil {
				if s.metrics != nil {
					s.metrics.RecordPollError(ctx, tail.Name())
				}
				s.logger.Warn("Log poll failed, retrying next tick", "source", tail.Name(), "error", err)
				continue
			}
			if s.metrics != nil {
				s.metrics.RecordLogBytes(ctx, tail.Name(), n)
			}
		}
	}
}
