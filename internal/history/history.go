// Package history keeps an append-only SQLite log of lifecycle transitions.
//
// Every create/start/attach/stop/remove (and the rare lost create race)
// lands here as one row, best-effort: the launcher logs write failures and
// never lets them affect a launch. "deva history" reads the log back.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration
)

// Actions recorded per transition.
const (
	ActionCreated  = "created"
	ActionStarted  = "started"
	ActionAttached = "attached"
	ActionRaced    = "raced"
	ActionStopped  = "stopped"
	ActionRemoved  = "removed"
)

// Event is one lifecycle transition.
type Event struct {
	ID        string
	Time      time.Time
	Container string
	Workspace string
	Agent     string
	Action    string
	Detail    string
}

// Store is the SQLite-backed event log.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the event log. Rows older than retentionDays are
// pruned on open (0 keeps everything).
func Open(path string, retentionDays int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id        TEXT PRIMARY KEY,
			ts        TEXT NOT NULL,
			container TEXT NOT NULL,
			workspace TEXT NOT NULL,
			agent     TEXT NOT NULL,
			action    TEXT NOT NULL,
			detail    TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_events_container ON events(container);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	s := &Store{db: db}
	if retentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC().Format(time.RFC3339Nano)
		if _, err := db.Exec(`DELETE FROM events WHERE ts < ?`, cutoff); err != nil {
			db.Close()
			return nil, fmt.Errorf("pruning history: %w", err)
		}
	}
	return s, nil
}

// Append records one event. A zero ID and Time are filled in.
func (s *Store) Append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO events (id, ts, container, workspace, agent, action, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Time.UTC().Format(time.RFC3339Nano),
		ev.Container, ev.Workspace, ev.Agent, ev.Action, ev.Detail)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// List returns events newest first, optionally filtered by container name.
// limit 0 means no limit.
func (s *Store) List(container string, limit int) ([]Event, error) {
	query := `SELECT id, ts, container, workspace, agent, action, detail FROM events`
	var args []any
	if container != "" {
		query += ` WHERE container = ?`
		args = append(args, container)
	}
	query += ` ORDER BY ts DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var ts string
		if err := rows.Scan(&ev.ID, &ts, &ev.Container, &ev.Workspace, &ev.Agent, &ev.Action, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Time, _ = time.Parse(time.RFC3339Nano, ts)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
