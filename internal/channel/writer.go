package channel

import (
	"context"
	"sync"
	"time"

	"jobpipe/internal/apperrors"
	"jobpipe/internal/transport"
)

// Writer appends messages to the channel, assigning each a strictly
// increasing sequence number starting at 1. Records are appended one at a
// time and independently durable; a crash can leave at most one partial
// trailing record, which readers tolerate.
type Writer struct {
	mu     sync.Mutex
	stream transport.Stream
	codec  Codec
	seq    uint64
	now    func() time.Time
}

// NewWriter creates a writer over stream using codec.
func NewWriter(stream transport.Stream, codec Codec) *Writer {
	return &Writer{
		stream: stream,
		codec:  codec,
		now:    time.Now,
	}
}

// Append assigns the next sequence number to msg, frames it, and appends it
// to the stream. It returns the assigned sequence number.
func (w *Writer) Append(ctx context.Context, msg Message) (uint64, error) {
	env, err := wrap(msg)
	if err != nil {
		return 0, apperrors.Serialization("message", err.Error())
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	env.Seq = w.seq + 1
	env.Time = w.now().UTC()

	frame, err := w.codec.Encode(env)
	if err != nil {
		return 0, apperrors.Serialization("message", err.Error())
	}
	if err := w.stream.Append(ctx, frame); err != nil {
		return 0, err
	}

	// The number is burned only once the record is durably appended, so a
	// failed append never leaves a gap.
	w.seq = env.Seq
	return env.Seq, nil
}

// Seq returns the highest sequence number assigned so far.
func (w *Writer) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}
