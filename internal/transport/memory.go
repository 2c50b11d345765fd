package transport

import (
	"context"
	"sync"
)

// MemoryStream is an in-process Stream. It backs tests and same-process
// launches where no shared medium is needed.
type MemoryStream struct {
	mu   sync.Mutex
	name string
	buf  []byte
}

// NewMemoryStream creates an in-memory stream with a display name.
func NewMemoryStream(name string) *MemoryStream {
	return &MemoryStream{name: name}
}

// Append appends p to the buffer.
func (s *MemoryStream) Append(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return nil
}

// ReadFrom returns all bytes past offset.
func (s *MemoryStream) ReadFrom(ctx context.Context, offset int64) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, offset, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset >= int64(len(s.buf)) {
		return nil, offset, nil
	}
	data := make([]byte, int64(len(s.buf))-offset)
	copy(data, s.buf[offset:])
	return data, int64(len(s.buf)), nil
}

// Name returns the stream's display name.
func (s *MemoryStream) Name() string {
	return s.name
}

// Truncate shortens the buffer to n bytes; used by tests that simulate a
// writer crash leaving a partial trailing record.
func (s *MemoryStream) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < len(s.buf) {
		s.buf = s.buf[:n]
	}
}

var _ Stream = (*MemoryStream)(nil)
