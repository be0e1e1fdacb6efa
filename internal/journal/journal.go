// Package journal persists a trace of processed events to SQLite.
//
// The journal records event traffic, never primitive state. It exists
// for audit; `kestrel journal` dumps a recorded run in sequence order.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Journal is an append-only SQLite event log.
// Opened with WAL mode so readers do not block the writer.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path. Idempotent.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY on concurrent appends from the timer thread.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record implements the engine's Recorder interface.
func (j *Journal) Record(seq int64, token, name string, derived bool) error {
	d := 0
	if derived {
		d = 1
	}
	_, err := j.db.Exec(`
		INSERT INTO events (seq, token, name, derived)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`, seq, token, name, d)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Entry is one journal row.
type Entry struct {
	Seq     int64
	Token   string
	Name    string
	Derived bool
}

// Entries returns all rows in seq order. When hostOnly is set, derived
// events are filtered out.
func (j *Journal) Entries(ctx context.Context, hostOnly bool) ([]Entry, error) {
	query := `SELECT seq, token, name, derived FROM events ORDER BY seq`
	if hostOnly {
		query = `SELECT seq, token, name, derived FROM events WHERE derived = 0 ORDER BY seq`
	}
	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var derived int
		if err := rows.Scan(&e.Seq, &e.Token, &e.Name, &derived); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Derived = derived != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return out, nil
}
