// Package transport provides append-only shared byte streams.
//
// A Stream is the medium both sides of the job boundary can reach: the remote
// writer appends framed records, the orchestrator reads everything past a
// byte offset. Implementations must tolerate concurrent append and read from
// separate processes.
package transport

import "context"

// Stream is an append-only byte stream with offset-based reads.
type Stream interface {
	// Append writes p atomically to the end of the stream.
	Append(ctx context.Context, p []byte) error

	// ReadFrom returns all bytes at or past offset and the offset just past
	// the returned data. A stream that does not exist yet, or has no new
	// data, returns (nil, offset, nil) - that is a normal outcome, not an
	// error.
	ReadFrom(ctx context.Context, offset int64) ([]byte, int64, error)

	// Name identifies the stream for logs and error context.
	Name() string
}
