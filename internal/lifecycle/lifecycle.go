// Package lifecycle decides what to do with a resolved container identity:
// attach to a running container, start a stopped one, or create a new one,
// converging concurrent invocations of the same identity onto a single
// container.
//
// The container engine's atomic create-with-unique-name is the only
// synchronization primitive. When a create loses that race the launcher
// waits for the winner's container to come up and attaches to it; every
// other engine failure is a misconfiguration and is surfaced verbatim,
// never retried.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/engine"
	"github.com/devadev/deva/internal/history"
	"github.com/devadev/deva/internal/identity"
	"github.com/devadev/deva/internal/log"
	"github.com/devadev/deva/internal/session"
)

// Phases used in fatal diagnostics. Every fatal error names the phase it
// failed in so a single log line places the failure.
const (
	PhaseIdentity = "identity"
	PhaseMount    = "mount"
	PhaseCreate   = "create"
	PhaseAttach   = "attach"
)

// ErrRaceTimeout is returned when a concurrently created container never
// reached the running state within the wait budget.
var ErrRaceTimeout = errors.New("timed out waiting for concurrently created container")

// PhaseError prefixes an error with the lifecycle phase it occurred in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return e.Phase + ": " + e.Err.Error() }
func (e *PhaseError) Unwrap() error { return e.Err }

// Phase wraps err with a phase prefix. nil stays nil.
func Phase(phase string, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: err}
}

// placeholderCmd keeps a persistent container alive between agent
// invocations; the agent itself runs via exec.
var placeholderCmd = []string{"tail", "-f", "/dev/null"}

// Spec is the immutable launch description handed to the state machine.
// It is assembled once per invocation; nothing downstream mutates it.
type Spec struct {
	Identity   *identity.Identity
	Name       string // resolved engine name (ResolveName)
	Agent      string
	Image      string
	Pull       engine.PullPolicy
	Mounts     []engine.Mount
	Env        []string
	Labels     map[string]string
	Command    []string // agent argv; primary process in ephemeral mode
	Ports      []string
	ExtraHosts []string
	Auth       agent.AuthContext
}

// Transition names the path Ensure took to a ready container.
type Transition string

const (
	// TransitionCreated means a new container was created.
	TransitionCreated Transition = "created"
	// TransitionStarted means a stopped container was restarted.
	TransitionStarted Transition = "started"
	// TransitionAttached means a running container was reused, possibly
	// one a concurrent invocation just created.
	TransitionAttached Transition = "attached"
)

// Result reports the ready container.
type Result struct {
	Name       string
	ID         string
	Transition Transition
}

// Launcher runs lifecycle transitions against an engine, recording them in
// the session registry and the history log. Both side writes are
// best-effort: failures are logged and never affect the launch.
type Launcher struct {
	Engine   engine.Engine
	Sessions *session.Manager
	History  *history.Store // may be nil

	// WaitAttempts and WaitInterval bound the collision-recovery poll.
	WaitAttempts int
	WaitInterval time.Duration
}

// New returns a launcher with the default wait budget: 20 attempts at
// 500ms, ten seconds total, enough for a concurrent create plus start.
func New(eng engine.Engine, sessions *session.Manager, hist *history.Store) *Launcher {
	return &Launcher{
		Engine:       eng,
		Sessions:     sessions,
		History:      hist,
		WaitAttempts: 20,
		WaitInterval: 500 * time.Millisecond,
	}
}

// ResolveName applies the ownership rule: the undecorated base name is
// used unless a different workspace's container already holds it, in which
// case this workspace permanently resolves to its hash-disambiguated name.
// Ephemeral identities carry a pid and never collide.
func (l *Launcher) ResolveName(ctx context.Context, id *identity.Identity) (string, error) {
	base := id.BaseName()
	if id.Ephemeral {
		return base, nil
	}
	info, err := l.Engine.FindContainer(ctx, base)
	if err != nil {
		return "", Phase(PhaseIdentity, err)
	}
	if info == nil || info.Labels[engine.LabelWorkspace] == id.Workspace() {
		return base, nil
	}
	log.Debug("base name owned by another workspace",
		"name", base, "owner", info.Labels[engine.LabelWorkspace])
	return id.DisambiguatedName(), nil
}

// Ensure drives the container for spec to running and reports how it got
// there. Ephemeral specs always create; persistent specs attach, restart,
// or create, recovering from create races on the same name.
func (l *Launcher) Ensure(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Identity.Ephemeral {
		return l.createEphemeral(ctx, spec)
	}

	info, err := l.Engine.FindContainer(ctx, spec.Name)
	if err != nil {
		return nil, Phase(PhaseAttach, err)
	}

	if info.Running() {
		log.Debug("attaching to running container", "name", spec.Name)
		l.recordTouch(spec)
		l.recordEvent(spec, history.ActionAttached, "")
		return &Result{Name: spec.Name, ID: info.ID, Transition: TransitionAttached}, nil
	}

	if info != nil {
		log.Debug("restarting stopped container", "name", spec.Name, "state", info.State)
		if err := l.Engine.Start(ctx, info.ID); err != nil {
			return nil, Phase(PhaseAttach, err)
		}
		l.recordSession(spec, info.ID)
		l.recordEvent(spec, history.ActionStarted, "")
		return &Result{Name: spec.Name, ID: info.ID, Transition: TransitionStarted}, nil
	}

	return l.create(ctx, spec, true)
}

// create creates and starts a persistent container, handling the name
// collision window. retryRename allows one switch to the disambiguated
// name when the collision owner turns out to be a different workspace
// (both invocations raced past the ownership probe).
func (l *Launcher) create(ctx context.Context, spec Spec, retryRename bool) (*Result, error) {
	if err := l.Engine.EnsureImage(ctx, spec.Image, spec.Pull); err != nil {
		return nil, Phase(PhaseCreate, err)
	}

	id, err := l.Engine.Create(ctx, l.engineSpec(spec, false))
	if err == nil {
		if err := l.Engine.Start(ctx, id); err != nil {
			// The container exists but never started; name it so the user
			// can inspect or remove it.
			return nil, Phase(PhaseCreate, fmt.Errorf("container %s created but not started: %w", spec.Name, err))
		}
		l.recordSession(spec, id)
		l.recordEvent(spec, history.ActionCreated, "")
		return &Result{Name: spec.Name, ID: id, Transition: TransitionCreated}, nil
	}

	if !engine.IsNameConflict(err) {
		return nil, Phase(PhaseCreate, err)
	}

	// Someone else created this name first. If they are a different
	// workspace, the ownership probe and their create interleaved; move to
	// the disambiguated name, once. Otherwise it is the same identity and
	// we converge on their container.
	owner, ferr := l.Engine.FindContainer(ctx, spec.Name)
	if ferr == nil && owner != nil && retryRename &&
		owner.Labels[engine.LabelWorkspace] != spec.Identity.Workspace() {
		log.Debug("create collided with another workspace, switching names",
			"name", spec.Name, "owner", owner.Labels[engine.LabelWorkspace])
		l.recordEvent(spec, history.ActionRaced, "renamed to "+spec.Identity.DisambiguatedName())
		spec.Name = spec.Identity.DisambiguatedName()
		return l.create(ctx, spec, false)
	}

	log.Debug("create lost the race, waiting for winner", "name", spec.Name)
	info, err := l.raceWait(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	l.recordTouch(spec)
	l.recordEvent(spec, history.ActionAttached, "after create race")
	return &Result{Name: spec.Name, ID: info.ID, Transition: TransitionAttached}, nil
}

// raceWait polls for the concurrently created container to reach running.
// The budget is fixed; exhausting it is a hard failure, not a fallback.
func (l *Launcher) raceWait(ctx context.Context, name string) (*engine.Info, error) {
	for attempt := 0; attempt < l.WaitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, Phase(PhaseCreate, ctx.Err())
			case <-time.After(l.WaitInterval):
			}
		}
		info, err := l.Engine.FindContainer(ctx, name)
		if err != nil {
			return nil, Phase(PhaseCreate, err)
		}
		if info.Running() {
			return info, nil
		}
	}
	return nil, Phase(PhaseCreate, fmt.Errorf("%w: %s did not run within %d attempts",
		ErrRaceTimeout, name, l.WaitAttempts))
}

// createEphemeral creates a single-use container that runs the agent
// command as its primary process and auto-removes on exit. The caller
// starts it attached, so streams are wired before the first write.
func (l *Launcher) createEphemeral(ctx context.Context, spec Spec) (*Result, error) {
	if err := l.Engine.EnsureImage(ctx, spec.Image, spec.Pull); err != nil {
		return nil, Phase(PhaseCreate, err)
	}
	id, err := l.Engine.Create(ctx, l.engineSpec(spec, true))
	if err != nil {
		return nil, Phase(PhaseCreate, err)
	}
	l.recordSession(spec, id)
	l.recordEvent(spec, history.ActionCreated, "ephemeral")
	return &Result{Name: spec.Name, ID: id, Transition: TransitionCreated}, nil
}

// Stop stops a managed container and records the transition.
func (l *Launcher) Stop(ctx context.Context, name string) error {
	info, err := l.Engine.FindContainer(ctx, name)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("no container named %s", name)
	}
	if info.Running() {
		if err := l.Engine.Stop(ctx, info.ID); err != nil {
			return err
		}
	}
	l.recordStatus(name, session.StatusStopped)
	l.recordNamedEvent(info, history.ActionStopped, "")
	return nil
}

// Remove removes a managed container and its session record. Running
// containers are refused unless force is set.
func (l *Launcher) Remove(ctx context.Context, name string, force bool) error {
	info, err := l.Engine.FindContainer(ctx, name)
	if err != nil {
		return err
	}
	if info != nil {
		if info.Running() && !force {
			return fmt.Errorf("container %s is running (use --force, or stop it first)", name)
		}
		if err := l.Engine.Remove(ctx, info.ID); err != nil {
			return err
		}
		l.recordNamedEvent(info, history.ActionRemoved, "")
	}
	if l.Sessions != nil {
		if err := l.Sessions.Delete(name); err != nil {
			log.Warn("could not delete session record", "container", name, "error", err)
		}
	}
	return nil
}

func (l *Launcher) engineSpec(spec Spec, ephemeral bool) engine.Spec {
	es := engine.Spec{
		Name:       spec.Name,
		Image:      spec.Image,
		Cmd:        placeholderCmd,
		WorkDir:    spec.Identity.Workspace(),
		Env:        spec.Env,
		Mounts:     spec.Mounts,
		Labels:     spec.Labels,
		Ports:      spec.Ports,
		ExtraHosts: spec.ExtraHosts,
	}
	if ephemeral {
		es.Cmd = spec.Command
		es.Interactive = true
		es.AutoRemove = true
	}
	return es
}

// recordSession writes the full record for a create or start transition.
func (l *Launcher) recordSession(spec Spec, containerID string) {
	if l.Sessions == nil {
		return
	}
	now := time.Now()
	rec := &session.Record{
		Container:     spec.Name,
		Agent:         spec.Agent,
		Workspace:     spec.Identity.Workspace(),
		WorkspaceHash: spec.Identity.WorkspaceHash,
		Auth:          spec.Auth,
		Ephemeral:     spec.Identity.Ephemeral,
		StartedAt:     now,
		LastSeen:      now,
		Status:        session.StatusRunning,
		PID:           spec.Identity.PID,
	}
	if err := l.Sessions.Write(rec); err != nil {
		log.Warn("session registry write failed", "container", spec.Name, "error", err)
	}
}

// recordTouch updates lastSeen on attach; a missing record (e.g. pruned)
// is rewritten in full.
func (l *Launcher) recordTouch(spec Spec) {
	if l.Sessions == nil {
		return
	}
	if err := l.Sessions.Touch(spec.Name); err != nil {
		l.recordSession(spec, "")
	}
}

func (l *Launcher) recordStatus(name, status string) {
	if l.Sessions == nil {
		return
	}
	rec, err := l.Sessions.Get(name)
	if err != nil {
		return
	}
	rec.Status = status
	rec.LastSeen = time.Now()
	if err := l.Sessions.Write(rec); err != nil {
		log.Warn("session registry write failed", "container", name, "error", err)
	}
}

func (l *Launcher) recordEvent(spec Spec, action, detail string) {
	if l.History == nil {
		return
	}
	err := l.History.Append(history.Event{
		Container: spec.Name,
		Workspace: spec.Identity.Workspace(),
		Agent:     spec.Agent,
		Action:    action,
		Detail:    detail,
	})
	if err != nil {
		log.Warn("history write failed", "container", spec.Name, "error", err)
	}
}

func (l *Launcher) recordNamedEvent(info *engine.Info, action, detail string) {
	if l.History == nil {
		return
	}
	err := l.History.Append(history.Event{
		Container: info.Name,
		Workspace: info.Labels[engine.LabelWorkspace],
		Agent:     info.Labels[engine.LabelAgent],
		Action:    action,
		Detail:    detail,
	})
	if err != nil {
		log.Warn("history write failed", "container", info.Name, "error", err)
	}
}
