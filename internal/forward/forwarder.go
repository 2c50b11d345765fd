package forward

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"jobpipe/internal/apperrors"
	"jobpipe/internal/channel"
	"jobpipe/pkg/backoff"
)

// ErrBufferFull is returned when the forwarder's buffer is full and the
// report is dropped.
var ErrBufferFull = errors.New("forward buffer full, report dropped")

const (
	defaultBufferSize      = 256
	defaultWorkers         = 2
	defaultMaxRetries      = 3
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// Config holds forwarder configuration.
type Config struct {
	URL         string        // event-log callback URL (required)
	SigningKey  string        // HMAC key, empty = unsigned
	Source      string        // CloudEvent source (default "jobpipe/orchestrator")
	BufferSize  int           // queued reports before drops (default 256)
	Workers     int           // concurrent deliveries (default 2)
	HTTPTimeout time.Duration // per-request timeout (default 30s)
	MaxRetries  int           // retries per report (default 3)
}

// Recorder is an optional interface for recording forwarder metrics.
type Recorder interface {
	RecordForwardDelivered(ctx context.Context, durationSeconds float64)
	RecordForwardFailed(ctx context.Context)
	RecordForwardDropped(ctx context.Context)
}

// item is one report queued for delivery.
type item struct {
	runID string
	msg   channel.Message
}

// Forwarder delivers reports asynchronously: a bounded queue feeds a worker
// pool that retries with exponential backoff behind a circuit breaker. When
// the queue is full the report is dropped and counted; the pull API still
// holds every report.
type Forwarder struct {
	queue      chan item
	sender     *sender
	breaker    *breaker
	url        string
	signingKey string
	source     string
	maxRetries int
	logger     *slog.Logger
	metrics    Recorder

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// Stats holds forwarder statistics.
type Stats struct {
	QueueDepth  int
	Queued      int64
	Delivered   int64
	Failed      int64
	Dropped     int64
	BreakerOpen bool
}

// New creates a forwarder and starts its workers.
func New(cfg Config, metrics Recorder) (*Forwarder, error) {
	if cfg.URL == "" {
		return nil, apperrors.Configuration("url", "forward URL is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Source == "" {
		cfg.Source = "jobpipe/orchestrator"
	}

	f := &Forwarder{
		queue:      make(chan item, cfg.BufferSize),
		sender:     newSender(cfg.HTTPTimeout),
		breaker:    newBreaker(defaultBreakerFailures, defaultBreakerCooldown),
		url:        cfg.URL,
		signingKey: cfg.SigningKey,
		source:     cfg.Source,
		maxRetries: cfg.MaxRetries,
		logger:     slog.With("component", "forward"),
		metrics:    metrics,
		shutdown:   make(chan struct{}),
	}

	f.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go f.worker()
	}

	f.logger.Info("Forwarder started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return f, nil
}

// Forward queues one report for delivery. Non-blocking; returns
// ErrBufferFull when the queue is saturated.
func (f *Forwarder) Forward(runID string, msg channel.Message) error {
	if f.closed.Load() {
		return errors.New("forwarder is closed")
	}

	select {
	case f.queue <- item{runID: runID, msg: msg}:
		f.queued.Add(1)
		return nil
	default:
		f.dropped.Add(1)
		if f.metrics != nil {
			f.metrics.RecordForwardDropped(context.Background())
		}
		f.logger.Warn("Report dropped, buffer full", "runId", runID, "kind", msg.MessageKind())
		return ErrBufferFull
	}
}

// Stats returns current forwarder statistics.
func (f *Forwarder) Stats() Stats {
	return Stats{
		QueueDepth:  len(f.queue),
		Queued:      f.queued.Load(),
		Delivered:   f.delivered.Load(),
		Failed:      f.failed.Load(),
		Dropped:     f.dropped.Load(),
		BreakerOpen: f.breaker.open(),
	}
}

// Close drains queued reports and stops the workers. The context deadline
// bounds the drain.
func (f *Forwarder) Close(ctx context.Context) error {
	if f.closed.Swap(true) {
		return nil // already closed
	}

	f.logger.Info("Forwarder shutting down", "queued", len(f.queue))
	close(f.shutdown)

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("Forwarder shutdown complete",
			"delivered", f.delivered.Load(),
			"failed", f.failed.Load(),
			"dropped", f.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		f.logger.Warn("Forwarder shutdown timed out", "remaining", len(f.queue))
		return ctx.Err()
	}
}

// worker delivers queued reports until shutdown, then drains what remains.
func (f *Forwarder) worker() {
	defer f.wg.Done()

	for {
		select {
		case <-f.shutdown:
			f.drainQueue()
			return
		case it := <-f.queue:
			f.deliver(it)
		}
	}
}

func (f *Forwarder) drainQueue() {
	for {
		select {
		case it := <-f.queue:
			f.deliver(it)
		default:
			return
		}
	}
}

// deliver attempts one report with retry behind the circuit breaker.
func (f *Forwarder) deliver(it item) {
	if !f.breaker.allow() {
		f.failed.Add(1)
		if f.metrics != nil {
			f.metrics.RecordForwardFailed(context.Background())
		}
		return
	}

	event, err := NewReportEvent(f.source, it.runID, it.msg)
	if err != nil {
		f.logger.Warn("Unforwardable report", "runId", it.runID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := f.sendWithRetry(ctx, event); err != nil {
		f.breaker.recordFailure()
		f.failed.Add(1)
		if f.metrics != nil {
			f.metrics.RecordForwardFailed(ctx)
		}
		f.logger.Warn("Delivery failed", "runId", it.runID, "type", event.Type, "error", err)
		return
	}

	f.breaker.recordSuccess()
	f.delivered.Add(1)
	if f.metrics != nil {
		f.metrics.RecordForwardDelivered(ctx, time.Since(start).Seconds())
	}
}

func (f *Forwarder) sendWithRetry(ctx context.Context, event *CloudEvent) error {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, 0, 0)):
			}
		}

		lastErr = f.sender.send(ctx, f.url, event, f.signingKey)
		if lastErr == nil {
			return nil
		}
		if isClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
