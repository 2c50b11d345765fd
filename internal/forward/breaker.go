package forward

import (
	"sync"
	"time"
)

// breakerState tracks the event-log destination's health.
type breakerState int

const (
	breakerClosed   breakerState = iota // normal operation, deliveries allowed
	breakerOpen                         // too many failures, deliveries blocked
	breakerHalfOpen                     // cooldown elapsed, probing with one delivery
)

// breaker blocks deliveries to the destination after consecutive failures,
// giving it a cooldown before probing again. One forwarder has one
// destination, so one breaker suffices.
type breaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	threshold   int
	lastFailure time.Time
	cooldown    time.Duration
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{threshold: threshold, cooldown: cooldown}
}

// allow reports whether a delivery should be attempted.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailure) > b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// recordSuccess closes the breaker.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = breakerClosed
}

// recordFailure counts a failure and opens the breaker at the threshold.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
	}
}

// open reports whether deliveries are currently blocked.
func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen
}
