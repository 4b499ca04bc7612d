// Package session implements the runtime session/memory context: the one
// genuinely shared mutable store workers touch during a dispatch batch.
// Reads are concurrent; writes serialize per key (single writer at a time
// per key) and every write also lands in an append-log so conflicting
// concurrent writes stay inspectable after last-writer-wins resolution.
package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/internal/state"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Context is the enclosing execution context of one task. It owns the memory
// entries, transcript, and result bookkeeping created during its lifetime.
type Context struct {
	id       string
	taskGoal string
	db       *state.DB

	mu     sync.RWMutex
	values map[string]models.MemoryEntry

	lockMu   sync.Mutex
	keyLocks map[string]*sync.Mutex

	transcriptMu sync.Mutex
	transcript   []string

	// delta accumulates persistent entries written during this session,
	// returned by Teardown.
	deltaMu sync.Mutex
	delta   map[string]models.MemoryEntry

	torndown bool
}

// New creates a session for the given task: a session row in the store plus
// a context seeded with all persistent memory entries.
func New(db *state.DB, task models.Task) (*Context, error) {
	id := "sess-" + uuid.New().String()[:8]

	sess := models.Session{
		ID:        id,
		TaskGoal:  task.Goal,
		Status:    models.SessionRunning,
		StartedAt: time.Now(),
	}
	if err := db.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session row: %w", err)
	}

	c := &Context{
		id:       id,
		taskGoal: task.Goal,
		db:       db,
		values:   make(map[string]models.MemoryEntry),
		keyLocks: make(map[string]*sync.Mutex),
		delta:    make(map[string]models.MemoryEntry),
	}

	persistent, err := db.LoadPersistent()
	if err != nil {
		return nil, fmt.Errorf("load persistent memory: %w", err)
	}
	for _, entry := range persistent {
		c.values[entry.Key] = entry
	}
	if len(persistent) > 0 {
		log.Printf("[session] %s seeded with %d persistent entries", id, len(persistent))
	}

	return c, nil
}

// ID returns the session identifier.
func (c *Context) ID() string {
	return c.id
}

// Get returns the current value for a key; ok is false when absent.
// Concurrent readers never block each other.
func (c *Context) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.values[key]
	if !ok {
		return "", false
	}
	return entry.Value, true
}

// Entry returns the full memory entry for a key.
func (c *Context) Entry(key string) (models.MemoryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.values[key]
	return entry, ok
}

// keyLock returns the per-key writer mutex, creating it lazily.
func (c *Context) keyLock(key string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLocks[key] = l
	}
	return l
}

// Set writes a value under the single-writer-per-key discipline: the write
// serializes against other writers of the same key, lands in the append-log,
// and then replaces the current value (last writer wins).
func (c *Context) Set(key, value string, scope models.MemoryScope, writerID string) error {
	if key == "" {
		return fmt.Errorf("memory key must not be empty")
	}
	if !scope.Valid() {
		return fmt.Errorf("invalid memory scope %q", scope)
	}

	l := c.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := c.db.AppendMemoryWrite(c.id, key, value, writerID); err != nil {
		return err
	}

	entry := models.MemoryEntry{
		Key:       key,
		Value:     value,
		Scope:     scope,
		WriterID:  writerID,
		UpdatedAt: time.Now(),
	}
	if err := c.db.UpsertMemory(entry, c.id); err != nil {
		return err
	}

	c.mu.Lock()
	c.values[key] = entry
	c.mu.Unlock()

	if scope == models.ScopePersistent {
		c.deltaMu.Lock()
		c.delta[key] = entry
		c.deltaMu.Unlock()
	}
	return nil
}

// AppendTranscript appends one line to the session transcript.
func (c *Context) AppendTranscript(line string) {
	c.transcriptMu.Lock()
	defer c.transcriptMu.Unlock()
	c.transcript = append(c.transcript, line)
}

// Transcript returns a copy of the transcript lines.
func (c *Context) Transcript() []string {
	c.transcriptMu.Lock()
	defer c.transcriptMu.Unlock()
	return append([]string(nil), c.transcript...)
}

// Keys returns the memory keys currently visible, sorted.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot renders a compact summary of the session: goal, memory key counts
// by scope, and the transcript tail. Consumed by the decomposer and the
// generator as context.
func (c *Context) Snapshot() string {
	c.mu.RLock()
	var sessionKeys, persistentKeys []string
	for k, entry := range c.values {
		if entry.Scope == models.ScopePersistent {
			persistentKeys = append(persistentKeys, k)
		} else {
			sessionKeys = append(sessionKeys, k)
		}
	}
	c.mu.RUnlock()
	sort.Strings(sessionKeys)
	sort.Strings(persistentKeys)

	var b strings.Builder
	fmt.Fprintf(&b, "session %s\ngoal: %s\n", c.id, c.taskGoal)
	if len(persistentKeys) > 0 {
		fmt.Fprintf(&b, "persistent memory: %s\n", strings.Join(persistentKeys, ", "))
	}
	if len(sessionKeys) > 0 {
		fmt.Fprintf(&b, "session memory: %s\n", strings.Join(sessionKeys, ", "))
	}

	tail := c.Transcript()
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	if len(tail) > 0 {
		b.WriteString("transcript tail:\n")
		for _, line := range tail {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}

// Teardown closes the session: it marks the session row terminal with a
// summary and returns the persistent delta (entries written to persistent
// scope during this session). Safe to call once; later calls are no-ops.
func (c *Context) Teardown(ctx context.Context, status models.SessionStatus) ([]models.MemoryEntry, error) {
	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		return nil, nil
	}
	c.torndown = true
	c.mu.Unlock()

	if err := ctx.Err(); err != nil && status == models.SessionCompleted {
		status = models.SessionFailed
	}

	c.deltaMu.Lock()
	delta := make([]models.MemoryEntry, 0, len(c.delta))
	for _, entry := range c.delta {
		delta = append(delta, entry)
	}
	c.deltaMu.Unlock()
	sort.Slice(delta, func(i, j int) bool { return delta[i].Key < delta[j].Key })

	summary := c.Snapshot()
	if err := c.db.CompleteSession(c.id, status, summary); err != nil {
		return delta, fmt.Errorf("complete session: %w", err)
	}
	log.Printf("[session] %s torn down (%s), %d persistent entries in delta", c.id, status, len(delta))
	return delta, nil
}

// WriteLog returns the append-log rows for this session, optionally filtered
// by key.
func (c *Context) WriteLog(key string) ([]models.MemoryWrite, error) {
	return c.db.ListMemoryWrites(c.id, key)
}
