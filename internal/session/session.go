// Package session keeps one JSON record per deva-managed container.
//
// The registry is best-effort and non-authoritative: launches must succeed
// even when the session directory is unwritable, so every write returns an
// error the caller logs and never branches on. Records are the source of
// truth for listing and inspection; a record whose container no longer
// exists is stale and prunable, never fatal.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/engine"
	"github.com/devadev/deva/internal/log"
)

// Status values a record can report.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusRemoved = "removed"
)

// Record describes one deva-managed container. Optional fields carry
// omitempty so old readers tolerate records written by newer binaries and
// vice versa.
type Record struct {
	Container     string            `json:"container"`
	Agent         string            `json:"agent"`
	Workspace     string            `json:"workspace"`
	WorkspaceHash string            `json:"workspaceHash"`
	Auth          agent.AuthContext `json:"auth"`
	Ephemeral     bool              `json:"ephemeral,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	LastSeen      time.Time         `json:"lastSeen"`
	Status        string            `json:"status"`
	PID           int               `json:"pid,omitempty"`
}

// validName matches container names, which double as record file names.
var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Manager reads and writes session records in one directory.
type Manager struct {
	dir string
	mu  sync.RWMutex // protects file operations within this process
}

// NewManager creates a manager over the given directory. The directory is
// created lazily on the first write.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Dir returns the record directory.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name+".json")
}

// Write persists a full record, atomically: the record is written to a
// temporary file and renamed into place, so a concurrent reader never sees
// a partial record.
func (m *Manager) Write(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(rec)
}

func (m *Manager) writeLocked(rec *Record) error {
	if !validName.MatchString(rec.Container) {
		return fmt.Errorf("invalid container name: %q", rec.Container)
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session record: %w", err)
	}

	path := m.path(rec.Container)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing session record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming session record: %w", err)
	}
	return nil
}

// Touch updates only lastSeen, for attaches to an already-running
// container. A missing record is rewritten from scratch by the caller, so
// Touch reports it as an error rather than creating one.
func (m *Manager) Touch(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.loadLocked(name)
	if err != nil {
		return err
	}
	rec.LastSeen = time.Now()
	rec.Status = StatusRunning
	return m.writeLocked(rec)
}

// Get reads one record by container name.
func (m *Manager) Get(name string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(name)
}

func (m *Manager) loadLocked(name string) (*Record, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("invalid container name: %q", name)
	}
	data, err := os.ReadFile(m.path(name))
	if err != nil {
		return nil, fmt.Errorf("reading session record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing session record: %w", err)
	}
	return &rec, nil
}

// Delete removes a record. A record that is already gone is not an error.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !validName.MatchString(name) {
		return fmt.Errorf("invalid container name: %q", name)
	}
	if err := os.Remove(m.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session record: %w", err)
	}
	return nil
}

// List returns all records sorted by lastSeen, most recent first.
// Unparseable files are skipped with a debug log.
func (m *Manager) List() ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	records := make([]*Record, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		rec, err := m.loadLocked(name)
		if err != nil {
			log.Debug("skipping unreadable session record", "file", e.Name(), "error", err)
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastSeen.After(records[j].LastSeen)
	})
	return records, nil
}

// Reconcile cross-checks records against the engine and updates each
// record's Status in the returned slice: running, stopped, or removed when
// the container no longer exists. Record files are not modified; pruning
// is a separate, advisory step.
func (m *Manager) Reconcile(ctx context.Context, eng engine.Engine) ([]*Record, error) {
	records, err := m.List()
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			info, err := eng.FindContainer(ctx, rec.Container)
			if err != nil {
				return err
			}
			switch {
			case info == nil:
				rec.Status = StatusRemoved
			case info.Running():
				rec.Status = StatusRunning
			default:
				rec.Status = StatusStopped
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconciling sessions: %w", err)
	}
	return records, nil
}

// Prune deletes records whose containers no longer exist and returns the
// pruned container names.
func (m *Manager) Prune(ctx context.Context, eng engine.Engine) ([]string, error) {
	records, err := m.Reconcile(ctx, eng)
	if err != nil {
		return nil, err
	}
	var pruned []string
	for _, rec := range records {
		if rec.Status != StatusRemoved {
			continue
		}
		if err := m.Delete(rec.Container); err != nil {
			log.Warn("could not prune session record", "container", rec.Container, "error", err)
			continue
		}
		pruned = append(pruned, rec.Container)
	}
	return pruned, nil
}
