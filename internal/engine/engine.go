// Package engine abstracts the container backend behind a narrow interface.
//
// The Docker implementation is the only real backend; tests substitute fakes.
// Everything above this package speaks in terms of Spec, Info and the
// deva.* labels, never in Docker SDK types.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// Labels applied to every container deva creates. The workspace label is
// load-bearing: name ownership checks read it to decide whether a base name
// belongs to the requesting workspace.
const (
	LabelManaged       = "deva.managed"
	LabelWorkspace     = "deva.workspace"
	LabelWorkspaceHash = "deva.workspace-hash"
	LabelSlug          = "deva.slug"
	LabelAgent         = "deva.agent"
	LabelEphemeral     = "deva.ephemeral"
	LabelVolumeHash    = "deva.volume-hash"
	LabelAuth          = "deva.auth"
	LabelGitBranch     = "deva.git-branch"
)

// PullPolicy controls when EnsureImage contacts the registry.
type PullPolicy string

const (
	// PullMissing pulls only when the image is absent locally.
	PullMissing PullPolicy = "missing"
	// PullAlways pulls even when a local copy exists.
	PullAlways PullPolicy = "always"
	// PullNever fails when the image is absent locally.
	PullNever PullPolicy = "never"
)

// ParsePullPolicy parses a --pull flag value. Empty means PullMissing.
func ParsePullPolicy(s string) (PullPolicy, error) {
	switch PullPolicy(s) {
	case "":
		return PullMissing, nil
	case PullMissing, PullAlways, PullNever:
		return PullPolicy(s), nil
	}
	return "", fmt.Errorf("invalid pull policy %q (want missing, always, or never)", s)
}

// Mount is a single bind mount in a container spec.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Spec describes a container to create. It is assembled once per launch and
// not modified afterwards.
type Spec struct {
	Name        string
	Image       string
	Cmd         []string
	WorkDir     string
	User        string
	Env         []string
	Mounts      []Mount
	Labels      map[string]string
	Ports       []string // "hostPort:containerPort", bound to 127.0.0.1
	ExtraHosts  []string // "host:ip" or "host:host-gateway"
	Interactive bool
	AutoRemove  bool // ephemeral containers; disables the restart policy
}

// Info is a point-in-time snapshot of a container.
type Info struct {
	ID      string // truncated to 12 chars
	Name    string
	Image   string
	State   string // "running", "exited", "created", ...
	Status  string // human readable, e.g. "Up 2 hours"
	Created time.Time
	Labels  map[string]string
}

// Running reports whether the container's state is "running".
func (i *Info) Running() bool {
	return i != nil && i.State == "running"
}

// Winsize carries a terminal resize event to a running exec session.
type Winsize struct {
	Height uint
	Width  uint
}

// AttachOptions configures stream wiring for Attach and StartAttached.
// Stdin may be nil for output-only attachment. Height/Width set the initial
// TTY size; later resizes go through ResizeTTY.
type AttachOptions struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	TTY    bool
	Height uint
	Width  uint
}

// ExecOptions configures a command run inside an existing container.
// The Resize channel, if non-nil, delivers terminal size changes for the
// lifetime of the exec; the exec ID is internal so resizes cannot go
// through ResizeTTY.
type ExecOptions struct {
	Cmd     []string
	WorkDir string
	User    string
	Env     []string
	TTY     bool
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Height  uint
	Width   uint
	Resize  <-chan Winsize
}

// Engine is the container backend surface deva depends on.
type Engine interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// EnsureImage makes the image available locally per the pull policy.
	EnsureImage(ctx context.Context, image string, policy PullPolicy) error

	// Create creates a container and returns its ID. Name collisions are
	// reported as-is; classify with IsNameConflict.
	Create(ctx context.Context, spec Spec) (string, error)

	// Start starts a created or stopped container.
	Start(ctx context.Context, id string) error

	// StartAttached attaches first, then starts, so the main process sees
	// connected streams from its first write.
	StartAttached(ctx context.Context, id string, opts AttachOptions) error

	// Attach connects to an already running container.
	Attach(ctx context.Context, id string, opts AttachOptions) error

	// Stop gracefully stops a container.
	Stop(ctx context.Context, id string) error

	// Remove force-removes a container. Absent containers are not an error.
	Remove(ctx context.Context, id string) error

	// Wait blocks until the container stops and returns its exit code.
	Wait(ctx context.Context, id string) (int64, error)

	// State returns the container's current state string.
	State(ctx context.Context, id string) (string, error)

	// FindContainer looks up a container by exact name in any state.
	// Returns (nil, nil) when no container has that name.
	FindContainer(ctx context.Context, name string) (*Info, error)

	// List returns containers matching all label selectors ("key" or
	// "key=value"), including stopped ones.
	List(ctx context.Context, selectors ...string) ([]Info, error)

	// Exec runs a command inside a running container and returns its exit
	// code.
	Exec(ctx context.Context, id string, opts ExecOptions) (int, error)

	// ResizeTTY resizes the container's primary TTY.
	ResizeTTY(ctx context.Context, id string, height, width uint) error

	// Logs returns up to tail lines of container output (0 means all).
	Logs(ctx context.Context, id string, tail int) (string, error)

	// Close releases the backend connection.
	Close() error
}

// IsNameConflict reports whether err is a container name collision, meaning
// another process created the name first. Docker does not always return a
// proper conflict error code, so check the message as a fallback.
func IsNameConflict(err error) bool {
	if err == nil {
		return false
	}
	if errdefs.IsConflict(err) {
		return true
	}
	return strings.Contains(err.Error(), "is already in use")
}
