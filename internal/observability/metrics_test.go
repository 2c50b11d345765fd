package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordChannelMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordPoll(ctx, "messages", 3, 0, 0.002)
	metrics.RecordPoll(ctx, "messages", 0, 1, 0.001)
	metrics.RecordPollError(ctx, "messages")
	metrics.RecordLogBytes(ctx, "stdout", 128)
	metrics.RecordLogBytes(ctx, "stderr", 0)
}

func TestRecordSessionMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordSessionOpened(ctx)
	metrics.RecordResultsBuffered(ctx, 2)
	metrics.RecordResultsBuffered(ctx, -2)
	metrics.RecordSessionClosed(ctx)
	metrics.RecordForwardDelivered(ctx, 0.05)
	metrics.RecordForwardFailed(ctx)
	metrics.RecordForwardDropped(ctx)
}
