package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/loom/pkg/models"
)

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a new running session row.
func (db *DB) CreateSession(sess models.Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, task_goal, status, started_at)
		VALUES (?, ?, ?, ?)
	`, sess.ID, sess.TaskGoal, string(sess.Status), formatTime(sess.StartedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// CompleteSession marks a session terminal with its teardown summary.
func (db *DB) CompleteSession(id string, status models.SessionStatus, summary string) error {
	result, err := db.Exec(`
		UPDATE sessions SET status = ?, completed_at = ?, summary = ?
		WHERE id = ?
	`, string(status), formatTime(time.Now()), summary, id)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession loads a session row by ID.
func (db *DB) GetSession(id string) (*models.Session, error) {
	row := db.QueryRow(`
		SELECT id, task_goal, status, started_at, completed_at, summary
		FROM sessions WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions newest-first, up to limit (0 = all).
func (db *DB) ListSessions(limit int) ([]models.Session, error) {
	query := `
		SELECT id, task_goal, status, started_at, completed_at, summary
		FROM sessions ORDER BY started_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*models.Session, error) {
	var sess models.Session
	var status, startedAt string
	var completedAt, summary sql.NullString

	if err := s.Scan(&sess.ID, &sess.TaskGoal, &status, &startedAt, &completedAt, &summary); err != nil {
		return nil, err
	}

	sess.Status = models.SessionStatus(status)
	started, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	sess.StartedAt = started
	sess.CompletedAt = parseNullableTime(completedAt)
	if summary.Valid {
		sess.Summary = summary.String
	}
	return &sess, nil
}
