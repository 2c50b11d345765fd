package channel

import (
	"context"
	"errors"
	"sync"

	"jobpipe/internal/apperrors"
	"jobpipe/internal/transport"
)

// Reader polls the channel and decodes records past its cursor.
//
// The reader owns its cursor (highest sequence number delivered) and its byte
// offset into the stream. Both only move forward. Poll is not safe for
// concurrent use; the session's message poller is its single caller. Cursor
// and Offset may be read from any goroutine.
type Reader struct {
	stream transport.Stream
	codec  Codec

	mu     sync.Mutex
	offset int64  // byte offset of the first unconsumed byte
	cursor uint64 // highest sequence number delivered
}

// NewReader creates a reader over stream using codec.
func NewReader(stream transport.Stream, codec Codec) *Reader {
	return &Reader{stream: stream, codec: codec}
}

// Poll returns all fully formed records with sequence numbers past the
// cursor, in increasing order, and advances the cursor to the highest
// sequence returned. Malformed records are skipped and reported as decode
// warnings; they never stall the stream. A truncated trailing record is
// withheld: the byte offset stays put and the record is retried next poll.
//
// An empty result with no warnings is the normal no-new-data outcome.
func (r *Reader) Poll(ctx context.Context) ([]*Envelope, []error, error) {
	r.mu.Lock()
	offset := r.offset
	cursor := r.cursor
	r.mu.Unlock()

	data, _, err := r.stream.ReadFrom(ctx, offset)
	if err != nil {
		return nil, nil, err
	}

	var (
		out      []*Envelope
		warnings []error
		consumed int
	)
	buf := data
	for len(buf) > 0 {
		env, n, err := r.codec.Decode(buf)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if n <= 0 {
			// A codec must always make progress outside of ErrIncomplete.
			r.advance(consumed, cursor)
			return out, warnings, apperrors.Transport("channel.decode", r.stream.Name(),
				errors.New("codec consumed no bytes"))
		}
		buf = buf[n:]
		consumed += n
		if err != nil {
			warnings = append(warnings, apperrors.Decode("channel.decode", err))
			continue
		}
		if env.Seq <= cursor {
			// Already delivered (e.g. stream rewritten from the start);
			// the cursor never re-delivers.
			continue
		}
		cursor = env.Seq
		out = append(out, env)
	}
	r.advance(consumed, cursor)
	return out, warnings, nil
}

func (r *Reader) advance(consumed int, cursor uint64) {
	r.mu.Lock()
	r.offset += int64(consumed)
	r.cursor = cursor
	r.mu.Unlock()
}

// Cursor returns the highest sequence number delivered so far.
func (r *Reader) Cursor() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Offset returns the byte offset of the first unconsumed stream byte.
func (r *Reader) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}
