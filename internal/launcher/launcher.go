// Package launcher starts job processes with the protocol environment
// injected and reports only their opaque terminal status. Any visibility
// beyond "still running" and the exit code flows through the message
// channel, not through the launcher.
package launcher

import "context"

// State constants for a launched job.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// Spec describes a single launch. Env carries the bootstrap payload and
// channel coordinates; Mounts only apply to backends with a filesystem
// boundary (the subprocess backend ignores them).
type Spec struct {
	Name    string            // human-readable launch name, used in container and log labels
	Image   string            // container image, ignored by the subprocess backend
	Command []string          // argv; for containers an empty command uses the image default
	Env     map[string]string // injected environment, merged over the backend's base env
	WorkDir string            // working directory inside the job
	Mounts  []Mount
}

// Mount is a host path shared with a containerized job. Target defaults to
// Source so channel and log paths in Env stay valid on both sides.
type Mount struct {
	Source string
	Target string
}

// Status is the terminal result of a launch.
type Status struct {
	State    string
	ExitCode int
}

// Failed reports whether the launch ended abnormally.
func (s Status) Failed() bool {
	return s.State != StateCompleted
}

// Handle tracks one launched job.
type Handle interface {
	// ID identifies the launch in the backend (pid, container ID).
	ID() string

	// Wait blocks until the job reaches a terminal state. It is safe to
	// call from multiple goroutines and returns the same status to all.
	Wait(ctx context.Context) (Status, error)

	// Stop terminates the job and releases backend resources. Stopping a
	// finished job is a no-op.
	Stop(ctx context.Context) error
}

// Launcher starts jobs on some execution backend.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}
