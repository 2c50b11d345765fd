package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"jobpipe/internal/apperrors"
)

const (
	defaultFileMode = 0o644
	defaultDirMode  = 0o755
)

// FileStream is a Stream backed by a regular file on a medium shared by both
// processes (local disk, bind mount, network filesystem). Appends rely on
// O_APPEND so records from a single writer land contiguously.
type FileStream struct {
	mu   sync.Mutex
	path string
	file *os.File // lazily opened append handle, writer side only
}

// NewFileStream creates a file-backed stream at path. The file itself is
// created on first append, so a reader can poll before the remote side has
// written anything.
func NewFileStream(path string) (*FileStream, error) {
	if path == "" {
		return nil, apperrors.Configuration("path", "stream path is required")
	}
	return &FileStream{path: path}, nil
}

// Append writes p to the end of the file, creating it if needed.
func (s *FileStream) Append(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), defaultDirMode); err != nil {
			return apperrors.Transport("stream.append", s.path, err)
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFileMode)
		if err != nil {
			return apperrors.Transport("stream.append", s.path, err)
		}
		s.file = f
	}

	if _, err := s.file.Write(p); err != nil {
		return apperrors.Transport("stream.append", s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return apperrors.Transport("stream.append", s.path, err)
	}
	return nil
}

// ReadFrom returns all bytes past offset. A file that does not exist yet
// means the remote side has not flushed anything; that is not an error.
func (s *FileStream) ReadFrom(ctx context.Context, offset int64) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, offset, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, offset, nil
		}
		return nil, offset, apperrors.Transport("stream.read", s.path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, apperrors.Transport("stream.read", s.path, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, offset, apperrors.Transport("stream.read", s.path, err)
	}
	if len(data) == 0 {
		return nil, offset, nil
	}
	return data, offset + int64(len(data)), nil
}

// Name returns the backing file path.
func (s *FileStream) Name() string {
	return s.path
}

// Close releases the writer-side append handle, if any.
func (s *FileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

var _ Stream = (*FileStream)(nil)
