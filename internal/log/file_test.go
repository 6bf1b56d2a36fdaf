package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileSink_Write(t *testing.T) {
	tmpDir := t.TempDir()

	fs, err := NewFileSink(tmpDir)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	defer fs.Close()

	// Write a log line
	_, err = fs.Write([]byte(`{"msg":"test"}`))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Verify file exists with today's date
	today := time.Now().Format("2006-01-02")
	logFile := filepath.Join(tmpDir, "deva-"+today+".jsonl")
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Errorf("expected log file %s to exist", logFile)
	}

	// Verify content
	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(content), `{"msg":"test"}`) {
		t.Errorf("expected content to contain test message, got: %s", content)
	}
}

func TestFileSink_LatestSymlink(t *testing.T) {
	tmpDir := t.TempDir()

	fs, err := NewFileSink(tmpDir)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	defer fs.Close()

	fs.Write([]byte(`{"msg":"test"}`))

	// Verify symlink exists
	symlinkPath := filepath.Join(tmpDir, "latest")
	target, err := os.Readlink(symlinkPath)
	if err != nil {
		t.Fatalf("reading symlink: %v", err)
	}

	today := time.Now().Format("2006-01-02")
	expected := "deva-" + today + ".jsonl"
	if target != expected {
		t.Errorf("expected symlink to point to %s, got %s", expected, target)
	}
}

func TestCleanup_RemovesOldFiles(t *testing.T) {
	tmpDir := t.TempDir()

	oldName := "deva-" + time.Now().AddDate(0, 0, -30).Format("2006-01-02") + ".jsonl"
	newName := "deva-" + time.Now().Format("2006-01-02") + ".jsonl"
	other := "notes.txt"
	for _, name := range []string{oldName, newName, other} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	Cleanup(tmpDir, 7)

	if _, err := os.Stat(filepath.Join(tmpDir, oldName)); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed", oldName)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, newName)); err != nil {
		t.Errorf("expected %s to survive cleanup: %v", newName, err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, other)); err != nil {
		t.Errorf("expected non-log file to survive cleanup: %v", err)
	}
}
