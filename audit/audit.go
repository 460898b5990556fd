// Package audit records every unlock attempt in a SQLite table.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DBName is the audit database file name within the data directory.
const DBName = "audit.db"

// NoProfile is the profile ID recorded when no profile matched.
const NoProfile = -1

// Failure reasons.
const (
	ReasonSpoof    = "spoof suspected"
	ReasonMismatch = "face mismatch"
)

// Entry is one audit row.
type Entry struct {
	ID        int64
	AttemptID string
	ProfileID int64
	Success   bool
	// Confidence is the liveness confidence, nil when liveness did not run.
	Confidence *float64
	FailReason string
	Time       time.Time
}

// Confidence returns a pointer to c for Entry.Confidence.
func Confidence(c float64) *float64 { return &c }

const schema = `
CREATE TABLE IF NOT EXISTS unlock_log (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt_id          TEXT    NOT NULL,
	face_id             INTEGER NOT NULL,
	is_unlock           INTEGER NOT NULL,
	liveness_confidence REAL,
	fail_reason         TEXT,
	created_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS unlock_log_created_at ON unlock_log (created_at);
`

// Log is the audit table.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the audit database at path.
func Open(path string) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Log{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append writes e and returns its row ID. A zero Time is set to now.
func (l *Log) Append(ctx context.Context, e Entry) (int64, error) {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	var conf sql.NullFloat64
	if e.Confidence != nil {
		conf = sql.NullFloat64{Float64: *e.Confidence, Valid: true}
	}
	reason := sql.NullString{String: e.FailReason, Valid: e.FailReason != ""}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO unlock_log (attempt_id, face_id, is_unlock, liveness_confidence, fail_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.AttemptID, e.ProfileID, e.Success, conf, reason, e.Time.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, attempt_id, face_id, is_unlock, liveness_confidence, fail_reason, created_at
		 FROM unlock_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var list []Entry
	for rows.Next() {
		var (
			e      Entry
			conf   sql.NullFloat64
			reason sql.NullString
			millis int64
		)
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.ProfileID, &e.Success, &conf, &reason, &millis); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if conf.Valid {
			e.Confidence = Confidence(conf.Float64)
		}
		e.FailReason = reason.String
		e.Time = time.UnixMilli(millis).UTC()
		list = append(list, e)
	}
	return list, rows.Err()
}
