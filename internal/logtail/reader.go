// Package logtail forwards remote stdout/stderr-equivalent text to local
// output streams, best effort. This path is observability only; it carries no
// correctness obligation and is not part of the completion contract.
package logtail

import (
	"context"
	"io"
	"log/slog"
	"time"

	"jobpipe/internal/transport"
)

// Reader tails one remote log source and forwards new bytes verbatim to one
// local output stream. The offset only moves forward, and only past bytes
// that were actually written to the destination.
type Reader struct {
	name     string
	src      transport.Stream
	dst      io.Writer
	offset   int64
	lastPoll time.Time
	logger   *slog.Logger
}

// NewReader creates a tailer forwarding src to dst. name labels the source
// in logs ("stdout", "stderr").
func NewReader(name string, src transport.Stream, dst io.Writer) *Reader {
	return &Reader{
		name:   name,
		src:    src,
		dst:    dst,
		logger: slog.With("component", "logtail", "source", name),
	}
}

// PollOnce reads bytes appended since the last offset and forwards them. The
// remote platform may persist log content only every few minutes, so "no new
// data" is a normal outcome, never an error. Returns the number of bytes
// forwarded.
func (r *Reader) PollOnce(ctx context.Context) (int, error) {
	r.lastPoll = time.Now()

	data, _, err := r.src.ReadFrom(ctx, r.offset)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := r.dst.Write(data)
	if n > 0 {
		r.offset += int64(n)
	}
	if err != nil {
		r.logger.Warn("Short write to output stream", "wrote", n, "of", len(data), "error", err)
		return n, err
	}
	return n, nil
}

// Name returns the source label.
func (r *Reader) Name() string {
	return r.name
}

// Offset returns the high-water mark of forwarded bytes.
func (r *Reader) Offset() int64 {
	return r.offset
}

// LastPoll returns when the source was last polled.
func (r *Reader) LastPoll() time.Time {
	return r.lastPoll
}
