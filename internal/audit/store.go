// Package audit persists the tool invocation trail: one record per
// gateway-mediated call, consumed by external monitoring and `loom audit`.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ShayCichocki/loom/pkg/models"
)

// Store manages the tool_calls audit table.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the audit database path under the XDG data dir.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "loom", "audit.db")
}

// Open opens (creating if needed) the audit store at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			session_id TEXT,
			worker_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			input TEXT,
			decision TEXT NOT NULL,
			reason TEXT,
			result TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create tool_calls table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists one tool call record. A zero ID or timestamp is filled in.
func (s *Store) Record(rec models.ToolCallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO tool_calls (id, timestamp, session_id, worker_id, tool_name,
			input, decision, reason, result, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.SessionID, rec.WorkerID,
		rec.ToolName, rec.Input, string(rec.Decision), rec.Reason, rec.Result, rec.Error, rec.DurationMs)
	if err != nil {
		return fmt.Errorf("record tool call: %w", err)
	}
	return nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	SessionID string
	WorkerID  string
	Limit     int
}

// List returns records oldest-first, applying the filter.
func (s *Store) List(f Filter) ([]models.ToolCallRecord, error) {
	query := `
		SELECT id, timestamp, session_id, worker_id, tool_name,
			input, decision, reason, result, error, duration_ms
		FROM tool_calls WHERE 1=1
	`
	var args []any
	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.WorkerID != "" {
		query += " AND worker_id = ?"
		args = append(args, f.WorkerID)
	}
	query += " ORDER BY timestamp, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer rows.Close()

	var records []models.ToolCallRecord
	for rows.Next() {
		var rec models.ToolCallRecord
		var ts string
		var sessionID, input, reason, result, errText sql.NullString
		var decision string

		if err := rows.Scan(&rec.ID, &ts, &sessionID, &rec.WorkerID, &rec.ToolName,
			&input, &decision, &reason, &result, &errText, &rec.DurationMs); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		rec.Timestamp = parsed
		rec.Decision = models.DecisionAction(decision)
		rec.SessionID = sessionID.String
		rec.Input = input.String
		rec.Reason = reason.String
		rec.Result = result.String
		rec.Error = errText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountBySession returns how many calls a session recorded.
func (s *Store) CountBySession(sessionID string) (int, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM tool_calls WHERE session_id = ?`, sessionID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count tool calls: %w", err)
	}
	return n, nil
}
