package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/pkg/models"
)

// UpsertMemory writes the current value of a memory entry. Session-scoped
// entries key on (key, session); persistent entries use an empty session ID
// so they resolve across sessions.
func (db *DB) UpsertMemory(entry models.MemoryEntry, sessionID string) error {
	if entry.Scope == models.ScopePersistent {
		sessionID = ""
	}
	_, err := db.Exec(`
		INSERT INTO memory_entries (key, scope, session_id, value, writer_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key, scope, session_id) DO UPDATE SET
			value = excluded.value,
			writer_id = excluded.writer_id,
			updated_at = excluded.updated_at
	`, entry.Key, string(entry.Scope), sessionID, entry.Value, entry.WriterID, formatTime(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert memory entry: %w", err)
	}
	return nil
}

// GetMemory reads one entry back; ok is false when absent.
func (db *DB) GetMemory(key string, scope models.MemoryScope, sessionID string) (models.MemoryEntry, bool, error) {
	if scope == models.ScopePersistent {
		sessionID = ""
	}
	row := db.QueryRow(`
		SELECT key, scope, value, writer_id, updated_at
		FROM memory_entries WHERE key = ? AND scope = ? AND session_id = ?
	`, key, string(scope), sessionID)

	entry, err := scanMemoryEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MemoryEntry{}, false, nil
	}
	if err != nil {
		return models.MemoryEntry{}, false, fmt.Errorf("get memory entry: %w", err)
	}
	return entry, true, nil
}

// LoadPersistent returns every persistent entry, for seeding a new session's
// context.
func (db *DB) LoadPersistent() ([]models.MemoryEntry, error) {
	rows, err := db.Query(`
		SELECT key, scope, value, writer_id, updated_at
		FROM memory_entries WHERE scope = ? ORDER BY key
	`, string(models.ScopePersistent))
	if err != nil {
		return nil, fmt.Errorf("load persistent memory: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		entry, err := scanMemoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AppendMemoryWrite records one write in the append-log so concurrent writes
// to the same key stay inspectable after last-writer-wins resolution.
func (db *DB) AppendMemoryWrite(sessionID, key, value, writerID string) error {
	_, err := db.Exec(`
		INSERT INTO memory_writes (id, session_id, key, value, writer_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), sessionID, key, value, writerID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("append memory write: %w", err)
	}
	return nil
}

// ListMemoryWrites returns the write log for a session in append order,
// optionally filtered by key (empty = all keys).
func (db *DB) ListMemoryWrites(sessionID, key string) ([]models.MemoryWrite, error) {
	query := `
		SELECT id, session_id, key, value, writer_id, created_at
		FROM memory_writes WHERE session_id = ?
	`
	args := []any{sessionID}
	if key != "" {
		query += " AND key = ?"
		args = append(args, key)
	}
	query += " ORDER BY created_at, id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memory writes: %w", err)
	}
	defer rows.Close()

	var writes []models.MemoryWrite
	for rows.Next() {
		var w models.MemoryWrite
		var createdAt string
		if err := rows.Scan(&w.ID, &w.SessionID, &w.Key, &w.Value, &w.WriterID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory write: %w", err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		w.CreatedAt = created
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

func scanMemoryEntry(s scanner) (models.MemoryEntry, error) {
	var entry models.MemoryEntry
	var scope, updatedAt string
	var writerID sql.NullString

	if err := s.Scan(&entry.Key, &scope, &entry.Value, &writerID, &updatedAt); err != nil {
		return models.MemoryEntry{}, err
	}

	entry.Scope = models.MemoryScope(scope)
	if writerID.Valid {
		entry.WriterID = writerID.String
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return models.MemoryEntry{}, fmt.Errorf("parse updated_at: %w", err)
	}
	entry.UpdatedAt = updated
	return entry, nil
}
