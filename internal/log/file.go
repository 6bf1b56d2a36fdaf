package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// FileSink manages daily log file rotation and symlink updates.
type FileSink struct {
	dir      string
	mu       sync.Mutex
	file     *os.File
	currDate string
}

// NewFileSink creates a FileSink that writes to dir/deva-YYYY-MM-DD.jsonl.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}

	fs := &FileSink{dir: dir}
	if err := fs.rotate(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Write implements io.Writer. It handles daily rotation.
func (fs *FileSink) Write(p []byte) (n int, err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if today != fs.currDate {
		if err := fs.rotateLocked(); err != nil {
			return 0, err
		}
	}

	return fs.file.Write(p)
}

// Close closes the underlying file.
func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file != nil {
		return fs.file.Close()
	}
	return nil
}

func (fs *FileSink) rotate() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.rotateLocked()
}

func (fs *FileSink) rotateLocked() error {
	if fs.file != nil {
		fs.file.Close()
	}

	today := time.Now().Format("2006-01-02")
	filename := "deva-" + today + ".jsonl"
	path := filepath.Join(fs.dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	fs.file = f
	fs.currDate = today

	// Update symlink atomically
	fs.updateSymlink(filename)

	return nil
}

func (fs *FileSink) updateSymlink(target string) {
	symlinkPath := filepath.Join(fs.dir, "latest")
	tmpPath := symlinkPath + ".tmp"

	// Remove temp if exists, create new symlink, rename
	os.Remove(tmpPath)
	if err := os.Symlink(target, tmpPath); err != nil {
		return // Best effort
	}
	_ = os.Rename(tmpPath, symlinkPath) // Best effort
}

// datePattern matches deva-YYYY-MM-DD.jsonl filenames.
var datePattern = regexp.MustCompile(`^deva-\d{4}-\d{2}-\d{2}\.jsonl$`)

// Cleanup removes log files older than retentionDays.
func Cleanup(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return // Directory doesn't exist or can't be read
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !datePattern.MatchString(name) {
			continue // Not a log file
		}

		dateStr := name[len("deva-") : len("deva-")+10]
		fileDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue // Malformed, skip
		}

		if fileDate.Before(cutoff) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}
