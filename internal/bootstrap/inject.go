package bootstrap

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"

	"jobpipe/internal/apperrors"
)

// DefaultEnvVar is the wire contract between injector and loader when the
// payload travels as an environment variable.
const DefaultEnvVar = "JOBPIPE_CONTEXT"

// Transport carries a serialized payload across the process boundary. Put is
// called by the orchestrator before launch; Get by the remote side before
// business logic starts. The launcher must sequence job submission after
// injection completes; the protocol documents that precondition but cannot
// enforce it.
type Transport interface {
	Put(ctx context.Context, data []byte) error
	Get(ctx context.Context) ([]byte, error)

	// Name identifies the medium (env var name, file path) for errors.
	Name() string
}

// Inject writes the payload through the transport. It must complete before
// the job launcher submits the remote process.
func Inject(ctx context.Context, p *Payload, t Transport) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	return t.Put(ctx, data)
}

// Load reads the payload on the remote side. A missing payload is a fatal
// local misconfiguration: proceeding would run user logic with no run
// identity.
func Load(ctx context.Context, t Transport) (*Payload, error) {
	data, err := t.Get(ctx)
	if err != nil {
		return nil, err
	}
	return decodePayload(data)
}

// EnvTransport carries the payload in an environment variable,
// base64-encoded to stay binary-safe as an env value. The orchestrator
// cannot set another process's environment, so Put captures the variable in
// Vars for the job launcher to apply at submission.
type EnvTransport struct {
	Key  string            // env var name; DefaultEnvVar when empty
	Vars map[string]string // populated by Put, consumed by the launcher
}

// NewEnvTransport creates an env-var transport for key.
func NewEnvTransport(key string) *EnvTransport {
	if key == "" {
		key = DefaultEnvVar
	}
	return &EnvTransport{Key: key, Vars: make(map[string]string)}
}

// Put records the encoded payload under the transport's key.
func (t *EnvTransport) Put(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.Vars == nil {
		t.Vars = make(map[string]string)
	}
	t.Vars[t.Key] = base64.StdEncoding.EncodeToString(data)
	return nil
}

// Get reads the payload from the process environment.
func (t *EnvTransport) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Prefer the locally captured value so one process can play both sides.
	encoded, ok := t.Vars[t.Key]
	if !ok {
		encoded, ok = os.LookupEnv(t.Key)
	}
	if !ok || encoded == "" {
		return nil, apperrors.MissingContext(t.Key)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.Decode("bootstrap.env", err)
	}
	return data, nil
}

// Name returns the environment variable name.
func (t *EnvTransport) Name() string {
	return t.Key
}

// FileTransport carries the payload as a JSON file on a medium both sides
// can reach (shared volume, network mount).
type FileTransport struct {
	Path string
}

// NewFileTransport creates a file transport at path.
func NewFileTransport(path string) (*FileTransport, error) {
	if path == "" {
		return nil, apperrors.Configuration("path", "bootstrap file path is required")
	}
	return &FileTransport{Path: path}, nil
}

// Put writes the payload file atomically (temp file + rename) so the remote
// loader never observes a half-written payload.
func (t *FileTransport) Put(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return apperrors.Transport("bootstrap.put", t.Path, err)
	}
	tmp := t.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Transport("bootstrap.put", t.Path, err)
	}
	if err := os.Rename(tmp, t.Path); err != nil {
		_ = os.Remove(tmp)
		return apperrors.Transport("bootstrap.put", t.Path, err)
	}
	return nil
}

// Get reads the payload file.
func (t *FileTransport) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(t.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.MissingContext(t.Path)
		}
		return nil, apperrors.Transport("bootstrap.get", t.Path, err)
	}
	if len(data) == 0 {
		return nil, apperrors.MissingContext(t.Path)
	}
	return data, nil
}

// Name returns the payload file path.
func (t *FileTransport) Name() string {
	return t.Path
}

var (
	_ Transport = (*EnvTransport)(nil)
	_ Transport = (*FileTransport)(nil)
)
