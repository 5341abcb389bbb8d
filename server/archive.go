package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is the SQLite-backed transcript store. Every transcript-bearing
// message a session produces is appended so transcripts survive restarts.
type Archive struct {
	db    *sql.DB
	clock func() time.Time
}

// SessionRecord is one archived session.
type SessionRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchivedEntry is one archived transcript line.
type ArchivedEntry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenArchive initializes the store at path. ":memory:" keeps it
// in-process, which tests use.
func OpenArchive(ctx context.Context, path string) (*Archive, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create archive dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	a := &Archive{db: db, clock: time.Now}
	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS transcript (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    speaker TEXT NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id)
);
CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session_id, id);
`
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init archive schema: %w", err)
	}
	return nil
}

func (a *Archive) AppendSession(ctx context.Context, sessionID string) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, created_at) VALUES (?, ?)`,
		sessionID, a.clock().UTC())
	if err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

func (a *Archive) AppendEntry(ctx context.Context, sessionID, speaker, text string) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO transcript (session_id, speaker, text, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, speaker, text, a.clock().UTC())
	if err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

func (a *Archive) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT session_id, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	records := make([]SessionRecord, 0)
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (a *Archive) ListTranscript(ctx context.Context, sessionID string) ([]ArchivedEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT speaker, text, created_at FROM transcript WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}
	defer rows.Close()

	entries := make([]ArchivedEntry, 0)
	for rows.Next() {
		var e ArchivedEntry
		if err := rows.Scan(&e.Speaker, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (a *Archive) Close() error {
	return a.db.Close()
}
