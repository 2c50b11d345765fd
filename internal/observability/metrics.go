package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds protocol metrics covering the golden signals:
// - Latency: poll durations, forward delivery latency
// - Traffic: messages decoded, log bytes forwarded
// - Errors: decode warnings, poll failures, forward failures
// - Saturation: active sessions, buffered results
type Metrics struct {
	meter metric.Meter

	// Channel metrics
	PollDuration      metric.Float64Histogram
	MessagesDecoded   metric.Int64Counter
	DecodeWarnings    metric.Int64Counter
	PollErrors        metric.Int64Counter
	LogBytesForwarded metric.Int64Counter

	// Session metrics
	SessionsActive  metric.Int64UpDownCounter
	ResultsBuffered metric.Int64UpDownCounter

	// Forwarder metrics
	ForwardDuration  metric.Float64Histogram
	ForwardDelivered metric.Int64Counter
	ForwardFailed    metric.Int64Counter
	ForwardDropped   metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("jobpipe")
	m := &Metrics{meter: meter}

	m.PollDuration, err = meter.Float64Histogram(
		"channel_poll_duration_seconds",
		metric.WithDescription("Message channel poll latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, nil, err
	}

	m.MessagesDecoded, err = meter.Int64Counter(
		"channel_messages_decoded_total",
		metric.WithDescription("Total well-formed records decoded from the channel"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DecodeWarnings, err = meter.Int64Counter(
		"channel_decode_warnings_total",
		metric.WithDescription("Total malformed records skipped"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollErrors, err = meter.Int64Counter(
		"channel_poll_errors_total",
		metric.WithDescription("Total transient transport failures during polls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.LogBytesForwarded, err = meter.Int64Counter(
		"logtail_bytes_forwarded_total",
		metric.WithDescription("Total raw log bytes forwarded to local output streams"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SessionsActive, err = meter.Int64UpDownCounter(
		"sessions_active",
		metric.WithDescription("Number of open sessions (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ResultsBuffered, err = meter.Int64UpDownCounter(
		"session_results_buffered",
		metric.WithDescription("Structured reports buffered awaiting a Results call (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ForwardDuration, err = meter.Float64Histogram(
		"forward_duration_seconds",
		metric.WithDescription("Report forward delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ForwardDelivered, err = meter.Int64Counter(
		"forward_delivered_total",
		metric.WithDescription("Total reports successfully forwarded"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ForwardFailed, err = meter.Int64Counter(
		"forward_failed_total",
		metric.WithDescription("Total reports that failed forwarding after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ForwardDropped, err = meter.Int64Counter(
		"forward_dropped_total",
		metric.WithDescription("Total reports dropped because the forward buffer was full"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordPoll records one message-channel poll.
func (m *Metrics) RecordPoll(ctx context.Context, source string, decoded, warnings int, durationSeconds float64) {
	attrs := WithSource(source)
	m.PollDuration.Record(ctx, durationSeconds, attrs)
	if decoded > 0 {
		m.MessagesDecoded.Add(ctx, int64(decoded), attrs)
	}
	if warnings > 0 {
		m.DecodeWarnings.Add(ctx, int64(warnings), attrs)
	}
}

// RecordPollError records a transient transport failure.
func (m *Metrics) RecordPollError(ctx context.Context, source string) {
	m.PollErrors.Add(ctx, 1, WithSource(source))
}

// RecordLogBytes records raw log bytes forwarded from a source.
func (m *Metrics) RecordLogBytes(ctx context.Context, source string, n int) {
	if n > 0 {
		m.LogBytesForwarded.Add(ctx, int64(n), WithSource(source))
	}
}

// RecordSessionOpened records a session entering the Open state.
func (m *Metrics) RecordSessionOpened(ctx context.Context) {
	m.SessionsActive.Add(ctx, 1)
}

// RecordSessionClosed records a session entering the Closed state.
func (m *Metrics) RecordSessionClosed(ctx context.Context) {
	m.SessionsActive.Add(ctx, -1)
}

// RecordResultsBuffered tracks the buffered-results queue depth delta.
func (m *Metrics) RecordResultsBuffered(ctx context.Context, delta int) {
	if delta != 0 {
		m.ResultsBuffered.Add(ctx, int64(delta))
	}
}

// RecordForwardDelivered records a successful report delivery with its duration.
func (m *Metrics) RecordForwardDelivered(ctx context.Context, durationSeconds float64) {
	m.ForwardDelivered.Add(ctx, 1)
	m.ForwardDuration.Record(ctx, durationSeconds)
}

// RecordForwardFailed records a failed report delivery.
func (m *Metrics) RecordForwardFailed(ctx context.Context) {
	m.ForwardFailed.Add(ctx, 1)
}

// RecordForwardDropped records a dropped report.
func (m *Metrics) RecordForwardDropped(ctx context.Context) {
	m.ForwardDropped.Add(ctx, 1)
}
