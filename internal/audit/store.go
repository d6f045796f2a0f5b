// Package audit keeps a history of block decisions in SQLite. The history
// is write-mostly and never read back into the block cache; the live
// firewall chain stays the source of truth across restarts.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/blockd/internal/clock"
)

// Actions recorded in the history.
const (
	ActionBlock   = "block"
	ActionRenew   = "renew"
	ActionUnblock = "unblock"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Event is one history entry.
type Event struct {
	ID      int64          `json:"id"`
	Time    time.Time      `json:"time"`
	Action  string         `json:"action"`
	Addr    string         `json:"addr"`
	Source  string         `json:"source,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	Addr   string
	Action string
	Since  time.Time
	Limit  int
}

// Store provides persistent storage for history events.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	retention time.Duration
	clock     clock.Clock
}

// NewStore opens (creating if needed) the history database at dbPath.
// retention <= 0 keeps events forever.
func NewStore(dbPath string, retention time.Duration, c clock.Clock) (*Store, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// One connection: SQLite has a single writer and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS block_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			action TEXT NOT NULL,
			addr TEXT NOT NULL,
			source TEXT,
			details TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_block_events_ts ON block_events(ts);
		CREATE INDEX IF NOT EXISTS idx_block_events_addr ON block_events(addr);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	return &Store{
		db:        db,
		retention: retention,
		clock:     clock.Or(c),
	}, nil
}

// Write persists one event. A zero Time is stamped with the store clock.
func (s *Store) Write(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Time.IsZero() {
		evt.Time = s.clock.Now()
	}

	var details sql.NullString
	if len(evt.Details) > 0 {
		b, err := json.Marshal(evt.Details)
		if err != nil {
			b = []byte("{}")
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO block_events (ts, action, addr, source, details)
		VALUES (?, ?, ?, ?, ?)
	`, evt.Time.UnixNano(), evt.Action, evt.Addr, nullString(evt.Source), details)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *Store) Query(f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Addr != "" {
		where = append(where, "addr = ?")
		args = append(args, f.Addr)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `SELECT id, ts, action, addr, source, details FROM block_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			evt     Event
			ts      int64
			source  sql.NullString
			details sql.NullString
		)
		if err := rows.Scan(&evt.ID, &ts, &evt.Action, &evt.Addr, &source, &details); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Time = time.Unix(0, ts).UTC()
		evt.Source = source.String
		if details.Valid && details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &evt.Details)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period.
func (s *Store) Prune() (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-s.retention)
	result, err := s.db.Exec("DELETE FROM block_events WHERE ts < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of events in the store.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM block_events").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
