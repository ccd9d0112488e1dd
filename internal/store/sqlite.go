// Package store persists classification events in SQLite.
package store

import (
	"context"
	"database/sql"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Session is one run of the pipeline.
type Session struct {
	ID        string
	StartedAt time.Time
	Source    string
	Model     string
	Backend   string
}

// Event is one rate-limited classification result.
type Event struct {
	ID           int64
	SessionID    string
	Label        string
	Confidence   float32
	Box          image.Rectangle
	FrameSeq     uint64
	SnapshotPath string
	CreatedAt    time.Time
}

// Filter narrows ListEvents and CountByLabel. Zero fields match everything.
type Filter struct {
	SessionID string
	Label     string
	Since     time.Time
	Limit     int
}

type LabelCount struct {
	Label string
	Count int
}

type Store struct {
	conn *sql.DB
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database '%s'", path)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to migrate database '%s'", path)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		backend TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		label TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		x0 INTEGER NOT NULL DEFAULT 0,
		y0 INTEGER NOT NULL DEFAULT 0,
		x1 INTEGER NOT NULL DEFAULT 0,
		y1 INTEGER NOT NULL DEFAULT 0,
		frame_seq INTEGER NOT NULL DEFAULT 0,
		snapshot_path TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_label ON events(label);
	CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
	`

	_, err := s.conn.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// StartSession inserts a session with a fresh ID and returns it.
func (s *Store) StartSession(ctx context.Context, sess Session) (Session, error) {
	sess.ID = uuid.NewString()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, source, model, backend)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.StartedAt.UnixMilli(), sess.Source, sess.Model, sess.Backend)
	if err != nil {
		return Session{}, errors.Wrap(err, "failed to insert session")
	}

	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := `SELECT id, started_at, source, model, backend FROM sessions ORDER BY started_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query sessions")
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess    Session
			started int64
		)
		if err := rows.Scan(&sess.ID, &started, &sess.Source, &sess.Model, &sess.Backend); err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		sess.StartedAt = time.UnixMilli(started)
		sessions = append(sessions, sess)
	}

	return sessions, errors.Wrap(rows.Err(), "failed to read sessions")
}

// RecordEvent inserts ev and returns its row ID.
func (s *Store) RecordEvent(ctx context.Context, ev Event) (int64, error) {
	if ev.SessionID == "" {
		return 0, errors.New("event has no session")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO events (session_id, label, confidence, x0, y0, x1, y1, frame_seq, snapshot_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.SessionID, ev.Label, ev.Confidence,
		ev.Box.Min.X, ev.Box.Min.Y, ev.Box.Max.X, ev.Box.Max.Y,
		int64(ev.FrameSeq), ev.SnapshotPath, ev.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert event")
	}

	return result.LastInsertId()
}

// ListEvents returns matching events, newest first.
func (s *Store) ListEvents(ctx context.Context, f Filter) ([]Event, error) {
	where, args := f.where()
	query := `
		SELECT id, session_id, label, confidence, x0, y0, x1, y1, frame_seq, snapshot_path, created_at
		FROM events` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev             Event
			x0, y0, x1, y1 int
			seq, created   int64
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Label, &ev.Confidence,
			&x0, &y0, &x1, &y1, &seq, &ev.SnapshotPath, &created); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		ev.Box = image.Rect(x0, y0, x1, y1)
		ev.FrameSeq = uint64(seq)
		ev.CreatedAt = time.UnixMilli(created)
		events = append(events, ev)
	}

	return events, errors.Wrap(rows.Err(), "failed to read events")
}

// CountByLabel counts matching events per label, most frequent first.
// The filter limit is ignored.
func (s *Store) CountByLabel(ctx context.Context, f Filter) ([]LabelCount, error) {
	where, args := f.where()
	rows, err := s.conn.QueryContext(ctx,
		`SELECT label, COUNT(*) AS n FROM events`+where+` GROUP BY label ORDER BY n DESC, label`,
		args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count events")
	}
	defer rows.Close()

	var counts []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, errors.Wrap(err, "failed to scan label count")
		}
		counts = append(counts, c)
	}

	return counts, errors.Wrap(rows.Err(), "failed to read label counts")
}

func (f Filter) where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Label != "" {
		conds = append(conds, "label = ?")
		args = append(args, f.Label)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
