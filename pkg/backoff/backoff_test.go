package backoff

import (
	"testing"
	"time"
)

func TestExponentialGrowth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}

	for _, tt := range tests {
		got := Exponential(tt.attempt, 0, 0)
		if got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestExponentialCap(t *testing.T) {
	t.Parallel()
	got := Exponential(20, 100*time.Millisecond, 5*time.Second)
	if got != 5*time.Second {
		t.Errorf("expected cap at 5s, got %v", got)
	}
}

func TestExponentialCustomBounds(t *testing.T) {
	t.Parallel()
	got := Exponential(2, 50*time.Millisecond, time.Second)
	if got != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", got)
	}
}

func TestExponentialInvalidAttempt(t *testing.T) {
	t.Parallel()
	if got := Exponential(0, 0, 0); got != DefaultInitial {
		t.Errorf("expected initial for attempt 0, got %v", got)
	}
	if got := Exponential(-3, 0, 0); got != DefaultInitial {
		t.Errorf("expected initial for negative attempt, got %v", got)
	}
}
