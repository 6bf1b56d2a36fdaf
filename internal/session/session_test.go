package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/engine"
)

func testRecord(name string) *Record {
	return &Record{
		Container:     name,
		Agent:         "claude",
		Workspace:     "/home/dev/work/myapp",
		WorkspaceHash: "1a2b3c4d",
		Auth:          agent.AuthContext{Agent: "claude", Method: "claude"},
		StartedAt:     time.Now(),
		LastSeen:      time.Now(),
		Status:        StatusRunning,
	}
}

func TestWriteGetRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())
	rec := testRecord("deva-work-myapp")

	if err := m.Write(rec); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get("deva-work-myapp")
	if err != nil {
		t.Fatal(err)
	}
	if got.Workspace != rec.Workspace || got.Agent != rec.Agent {
		t.Errorf("record round trip lost fields: %+v", got)
	}
	if got.Auth.Method != "claude" {
		t.Errorf("auth context lost: %+v", got.Auth)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	if err := m.Write(testRecord("deva-a")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "deva-a.json" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestWriteRejectsBadName(t *testing.T) {
	m := NewManager(t.TempDir())
	rec := testRecord("../escape")
	if err := m.Write(rec); err == nil {
		t.Fatal("expected error for path-traversal name")
	}
}

func TestTouchUpdatesLastSeenOnly(t *testing.T) {
	m := NewManager(t.TempDir())
	rec := testRecord("deva-a")
	rec.LastSeen = time.Now().Add(-time.Hour)
	rec.Status = StatusStopped
	if err := m.Write(rec); err != nil {
		t.Fatal(err)
	}

	if err := m.Touch("deva-a"); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get("deva-a")
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(got.LastSeen) > time.Minute {
		t.Error("lastSeen not updated")
	}
	if got.Status != StatusRunning {
		t.Errorf("touch should mark running, got %s", got.Status)
	}
	if got.Workspace != rec.Workspace {
		t.Error("touch must not change other fields")
	}
}

func TestTouchMissingRecordFails(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Touch("deva-none"); err == nil {
		t.Fatal("expected error touching a missing record")
	}
}

func TestListSortedAndSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	old := testRecord("deva-old")
	old.LastSeen = time.Now().Add(-2 * time.Hour)
	recent := testRecord("deva-new")
	for _, r := range []*Record{old, recent} {
		if err := m.Write(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "deva-bad.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Container != "deva-new" {
		t.Errorf("expected most recent first, got %s", records[0].Container)
	}
}

func TestListMissingDirIsEmpty(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent"))
	records, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestReaderToleratesMissingOptionalFields(t *testing.T) {
	dir := t.TempDir()
	minimal := `{"container":"deva-a","agent":"claude","workspace":"/w","status":"running"}`
	if err := os.WriteFile(filepath.Join(dir, "deva-a.json"), []byte(minimal), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	rec, err := m.Get("deva-a")
	if err != nil {
		t.Fatal(err)
	}
	if rec.PID != 0 || rec.Ephemeral {
		t.Errorf("optional fields should zero out: %+v", rec)
	}
}

func TestRecordJSONIsFlatCamelCase(t *testing.T) {
	data, err := json.Marshal(testRecord("deva-a"))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"container", "workspaceHash", "startedAt", "lastSeen", "status"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
}

func TestReconcileStatuses(t *testing.T) {
	m := NewManager(t.TempDir())
	eng := engine.NewFake()
	eng.Add("deva-running", "running", nil)
	eng.Add("deva-stopped", "exited", nil)

	for _, name := range []string{"deva-running", "deva-stopped", "deva-gone"} {
		if err := m.Write(testRecord(name)); err != nil {
			t.Fatal(err)
		}
	}

	records, err := m.Reconcile(context.Background(), eng)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"deva-running": StatusRunning,
		"deva-stopped": StatusStopped,
		"deva-gone":    StatusRemoved,
	}
	for _, rec := range records {
		if rec.Status != want[rec.Container] {
			t.Errorf("%s: status = %s, want %s", rec.Container, rec.Status, want[rec.Container])
		}
	}
}

// A record written at creation and never updated must never read back as
// running once its container stopped or disappeared.
func TestStaleRecordNeverReportsRunning(t *testing.T) {
	m := NewManager(t.TempDir())
	eng := engine.NewFake()
	eng.Add("deva-a", "running", nil)

	if err := m.Write(testRecord("deva-a")); err != nil {
		t.Fatal(err)
	}

	eng.SetState("deva-a", "exited")
	records, err := m.Reconcile(context.Background(), eng)
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Status != StatusStopped {
		t.Fatalf("stopped container reported %s", records[0].Status)
	}

	records, err = m.Reconcile(context.Background(), engine.NewFake())
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Status != StatusRemoved {
		t.Fatalf("removed container reported %s", records[0].Status)
	}
}

func TestPruneDeletesOnlyRemoved(t *testing.T) {
	m := NewManager(t.TempDir())
	eng := engine.NewFake()
	eng.Add("deva-live", "running", nil)

	if err := m.Write(testRecord("deva-live")); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(testRecord("deva-gone")); err != nil {
		t.Fatal(err)
	}

	pruned, err := m.Prune(context.Background(), eng)
	if err != nil {
		t.Fatal(err)
	}
	if len(pruned) != 1 || pruned[0] != "deva-gone" {
		t.Fatalf("pruned = %v", pruned)
	}
	if _, err := m.Get("deva-live"); err != nil {
		t.Error("live record pruned")
	}
	if _, err := m.Get("deva-gone"); err == nil {
		t.Error("stale record survived prune")
	}
}

func TestUnwritableDirectoryReturnsError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0755) })

	m := NewManager(filepath.Join(dir, "sessions"))
	// The error is reported, not swallowed: the lifecycle logs it and
	// moves on, which is the non-fatal contract.
	if err := m.Write(testRecord("deva-a")); err == nil {
		t.Fatal("expected error writing into unwritable directory")
	}
}
