// Package database persists monitor sessions and their activity events in SQLite.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Event kinds
const (
	KindActivity = "activity"
	KindSleep    = "sleep"
)

// Database handles SQLite database operations
type Database struct {
	db  *sql.DB
	log zerolog.Logger
}

// Session is one run of the monitor.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Mode      string     `json:"mode"`
	Source    string     `json:"source"`
}

// Event is a smoothed-activity label change or a sleep state transition.
type Event struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Detail     string    `json:"detail,omitempty"`
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Open opens (creating if needed) the database at path.
func Open(path string, log zerolog.Logger) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Database{db: db, log: log}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// StartSession records the start of a monitor run.
func (d *Database) StartSession(mode, source string, at time.Time) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: fromMillis(toMillis(at)),
		Mode:      mode,
		Source:    source,
	}
	_, err := d.db.Exec(`INSERT INTO sessions (id, started_at, mode, source) VALUES (?, ?, ?, ?)`,
		s.ID, toMillis(at), s.Mode, s.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session's end time.
func (d *Database) EndSession(id string, at time.Time) error {
	res, err := d.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var started int64
	var ended sql.NullInt64
	if err := row.Scan(&s.ID, &started, &ended, &s.Mode, &s.Source); err != nil {
		return nil, err
	}
	s.StartedAt = fromMillis(started)
	if ended.Valid {
		t := fromMillis(ended.Int64)
		s.EndedAt = &t
	}
	return &s, nil
}

// GetSession returns the session with id, or nil if there is none.
func (d *Database) GetSession(id string) (*Session, error) {
	row := d.db.QueryRow(`SELECT id, started_at, ended_at, mode, source FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns the most recent sessions first.
func (d *Database) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.Query(`SELECT id, started_at, ended_at, mode, source FROM sessions
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveEvent stores e, assigning an ID when it has none.
func (d *Database) SaveEvent(e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := d.db.Exec(`INSERT INTO activity_events
		(id, session_id, timestamp, kind, label, confidence, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, toMillis(e.Timestamp), e.Kind, e.Label, e.Confidence, e.Detail)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// ListEvents returns a session's events at or after since, oldest first.
// A zero since means from the beginning; limit <= 0 means no limit.
func (d *Database) ListEvents(sessionID string, since time.Time, limit int) ([]*Event, error) {
	var from int64
	if !since.IsZero() {
		from = toMillis(since)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := d.db.Query(`SELECT id, session_id, timestamp, kind, label, confidence, detail
		FROM activity_events WHERE session_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC, rowid ASC LIMIT ?`, sessionID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &e.SessionID, &ts, &e.Kind, &e.Label, &e.Confidence, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = fromMillis(ts)
		events = append(events, &e)
	}
	return events, rows.Err()
}
