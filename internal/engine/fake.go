package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Fake is an in-memory Engine for tests. It reproduces the two behaviors
// the lifecycle logic depends on: exact-name lookup and the daemon's
// atomic create-with-unique-name constraint (a second create of the same
// name fails with a conflict error).
type Fake struct {
	mu         sync.Mutex
	containers map[string]*Info
	specs      map[string]Spec
	nextID     int

	// OnCreate, when set, runs before each create's name check, letting
	// tests inject errors or racing containers. It runs outside the lock
	// so it may call back into the fake.
	OnCreate func(spec Spec) error

	// ExecCode is returned by Exec.
	ExecCode int
	// ExecErr, when set, fails Exec.
	ExecErr error

	// Pulled records EnsureImage calls.
	Pulled []string
	// Execs records Exec calls.
	Execs []ExecOptions
	// Removed records Remove calls by container ID.
	Removed []string
}

var _ Engine = (*Fake)(nil)

// NewFake returns an empty fake engine.
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]*Info),
		specs:      make(map[string]Spec),
	}
}

// Add seeds a container, returning its ID.
func (f *Fake) Add(name, state string, labels map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(name, state, labels)
}

func (f *Fake) addLocked(name, state string, labels map[string]string) string {
	f.nextID++
	id := fmt.Sprintf("fake%08d", f.nextID)
	f.containers[name] = &Info{
		ID:      id,
		Name:    name,
		State:   state,
		Created: time.Now(),
		Labels:  labels,
	}
	return id
}

// SetState changes a seeded container's state.
func (f *Fake) SetState(name, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[name]; ok {
		c.State = state
	}
}

// Spec returns the creation spec of a container by name.
func (f *Fake) Spec(name string) (Spec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.specs[name]
	return s, ok
}

func (f *Fake) Ping(ctx context.Context) error { return nil }

func (f *Fake) EnsureImage(ctx context.Context, image string, policy PullPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulled = append(f.Pulled, image)
	return nil
}

func (f *Fake) Create(ctx context.Context, spec Spec) (string, error) {
	if f.OnCreate != nil {
		if err := f.OnCreate(spec); err != nil {
			return "", err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.containers[spec.Name]; exists {
		return "", fmt.Errorf("Conflict. The container name %q is already in use", "/"+spec.Name)
	}
	id := f.addLocked(spec.Name, "created", spec.Labels)
	f.specs[spec.Name] = spec
	return id, nil
}

func (f *Fake) byID(id string) (*Info, bool) {
	for _, c := range f.containers {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (f *Fake) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID(id)
	if !ok {
		return fmt.Errorf("no such container: %s", id)
	}
	c.State = "running"
	return nil
}

func (f *Fake) StartAttached(ctx context.Context, id string, opts AttachOptions) error {
	return f.Start(ctx, id)
}

func (f *Fake) Attach(ctx context.Context, id string, opts AttachOptions) error {
	return nil
}

func (f *Fake) Stop(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID(id)
	if !ok {
		return fmt.Errorf("no such container: %s", id)
	}
	c.State = "exited"
	return nil
}

func (f *Fake) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, id)
	for name, c := range f.containers {
		if c.ID == id {
			delete(f.containers, name)
			delete(f.specs, name)
			return nil
		}
	}
	return nil
}

func (f *Fake) Wait(ctx context.Context, id string) (int64, error) {
	return 0, nil
}

func (f *Fake) State(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID(id)
	if !ok {
		return "", fmt.Errorf("no such container: %s", id)
	}
	return c.State, nil
}

func (f *Fake) FindContainer(ctx context.Context, name string) (*Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) List(ctx context.Context, selectors ...string) ([]Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []Info
	for _, c := range f.containers {
		if matchesSelectors(c.Labels, selectors) {
			infos = append(infos, *c)
		}
	}
	return infos, nil
}

func matchesSelectors(labels map[string]string, selectors []string) bool {
	for _, s := range selectors {
		key, value, hasValue := strings.Cut(s, "=")
		got, ok := labels[key]
		if !ok {
			return false
		}
		if hasValue && got != value {
			return false
		}
	}
	return true
}

func (f *Fake) Exec(ctx context.Context, id string, opts ExecOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Execs = append(f.Execs, opts)
	if f.ExecErr != nil {
		return -1, f.ExecErr
	}
	return f.ExecCode, nil
}

func (f *Fake) ResizeTTY(ctx context.Context, id string, height, width uint) error {
	return nil
}

func (f *Fake) Logs(ctx context.Context, id string, tail int) (string, error) {
	return "", nil
}

func (f *Fake) Close() error { return nil }
