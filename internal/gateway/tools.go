package gateway

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ShayCichocki/loom/internal/exec"
	"github.com/ShayCichocki/loom/internal/session"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Tool is one registered capability a worker may invoke through the gateway.
type Tool interface {
	// Name is the registry key ("Read", "Write", ...).
	Name() string
	// Description tells the model what the tool does.
	Description() string
	// Mutates reports whether the tool has external side effects.
	Mutates() bool
	// PrimaryArg names the input key permission rules match against.
	PrimaryArg() string
	// ClaimKey extracts the resource key the claim guard checks, or "" when
	// the tool's effects are not claim-scoped (Bash, memory).
	ClaimKey(input map[string]any) string
	// Execute performs the call. Errors come back to the worker as tool
	// results with IsError set, never as panics.
	Execute(ctx context.Context, input map[string]any) (string, error)
}

// Registry maps tool names to implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins installs the standard tool set rooted at workDir, with
// memory tools bound to the session context.
func (r *Registry) RegisterBuiltins(workDir string, sess *session.Context) {
	r.Register(&readTool{root: workDir})
	r.Register(&writeTool{root: workDir})
	r.Register(&editTool{root: workDir})
	r.Register(&listDirTool{root: workDir})
	r.Register(&globTool{root: workDir})
	r.Register(&bashTool{root: workDir, runner: exec.NewRunner()})
	r.Register(&memoryGetTool{sess: sess})
	r.Register(&memorySetTool{sess: sess})
}

// stringArg extracts a string input field; ok is false when absent or not a
// string.
func stringArg(input map[string]any, key string) (string, bool) {
	v, ok := input[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// resolvePath joins a tool path argument onto the root and rejects escapes.
func resolvePath(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not permitted: %s", rel)
	}
	full := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the working directory: %s", rel)
	}
	return full, nil
}

// pathClaimKey normalizes a path argument into the claim-table key space.
func pathClaimKey(input map[string]any, arg string) string {
	p, ok := stringArg(input, arg)
	if !ok {
		return ""
	}
	return models.NormalizeResourceKey(p)
}

type readTool struct{ root string }

func (t *readTool) Name() string        { return "Read" }
func (t *readTool) Description() string { return "Read a file relative to the working directory" }
func (t *readTool) Mutates() bool       { return false }
func (t *readTool) PrimaryArg() string  { return "path" }
func (t *readTool) ClaimKey(map[string]any) string {
	// Reads are unrestricted by the claim guard.
	return ""
}

func (t *readTool) Execute(_ context.Context, input map[string]any) (string, error) {
	rel, ok := stringArg(input, "path")
	if !ok {
		return "", fmt.Errorf("Read requires a path argument")
	}
	full, err := resolvePath(t.root, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), nil
}

type writeTool struct{ root string }

func (t *writeTool) Name() string        { return "Write" }
func (t *writeTool) Description() string { return "Write a file, creating parent directories" }
func (t *writeTool) Mutates() bool       { return true }
func (t *writeTool) PrimaryArg() string  { return "path" }
func (t *writeTool) ClaimKey(input map[string]any) string {
	return pathClaimKey(input, "path")
}

func (t *writeTool) Execute(_ context.Context, input map[string]any) (string, error) {
	rel, ok := stringArg(input, "path")
	if !ok {
		return "", fmt.Errorf("Write requires a path argument")
	}
	content, _ := stringArg(input, "content")
	full, err := resolvePath(t.root, rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), rel), nil
}

type editTool struct{ root string }

func (t *editTool) Name() string        { return "Edit" }
func (t *editTool) Description() string { return "Replace the first occurrence of old with new in a file" }
func (t *editTool) Mutates() bool       { return true }
func (t *editTool) PrimaryArg() string  { return "path" }
func (t *editTool) ClaimKey(input map[string]any) string {
	return pathClaimKey(input, "path")
}

func (t *editTool) Execute(_ context.Context, input map[string]any) (string, error) {
	rel, ok := stringArg(input, "path")
	if !ok {
		return "", fmt.Errorf("Edit requires a path argument")
	}
	oldStr, ok := stringArg(input, "old")
	if !ok {
		return "", fmt.Errorf("Edit requires an old argument")
	}
	newStr, _ := stringArg(input, "new")

	full, err := resolvePath(t.root, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	content := string(data)
	if !strings.Contains(content, oldStr) {
		return "", fmt.Errorf("old text not found in %s", rel)
	}
	content = strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return fmt.Sprintf("edited %s", rel), nil
}

type listDirTool struct{ root string }

func (t *listDirTool) Name() string        { return "ListDir" }
func (t *listDirTool) Description() string { return "List the entries of a directory" }
func (t *listDirTool) Mutates() bool       { return false }
func (t *listDirTool) PrimaryArg() string  { return "path" }
func (t *listDirTool) ClaimKey(map[string]any) string {
	return ""
}

func (t *listDirTool) Execute(_ context.Context, input map[string]any) (string, error) {
	rel, ok := stringArg(input, "path")
	if !ok || rel == "" {
		rel = "."
	}
	full, err := resolvePath(t.root, rel)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", rel, err)
	}
	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "%s/\n", e.Name())
		} else {
			fmt.Fprintf(&b, "%s\n", e.Name())
		}
	}
	return b.String(), nil
}

type globTool struct{ root string }

func (t *globTool) Name() string        { return "Glob" }
func (t *globTool) Description() string { return "Find files matching a glob pattern with ** support" }
func (t *globTool) Mutates() bool       { return false }
func (t *globTool) PrimaryArg() string  { return "pattern" }
func (t *globTool) ClaimKey(map[string]any) string {
	return ""
}

func (t *globTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	pattern, ok := stringArg(input, "pattern")
	if !ok {
		return "", fmt.Errorf("Glob requires a pattern argument")
	}
	var matches []string
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matchGlobPattern(rel, pattern) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	return strings.Join(matches, "\n"), nil
}

type bashTool struct {
	root   string
	runner exec.CommandRunner
}

func (t *bashTool) Name() string        { return "Bash" }
func (t *bashTool) Description() string { return "Run a shell command in the working directory" }
func (t *bashTool) Mutates() bool       { return true }
func (t *bashTool) PrimaryArg() string  { return "command" }
func (t *bashTool) ClaimKey(map[string]any) string {
	// Command effects are not path-shaped; permission rules gate Bash.
	return ""
}

func (t *bashTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	command, ok := stringArg(input, "command")
	if !ok {
		return "", fmt.Errorf("Bash requires a command argument")
	}
	out, err := t.runner.RunShell(ctx, t.root, command)
	if err != nil {
		return string(out), fmt.Errorf("command failed: %w", err)
	}
	return string(out), nil
}

type memoryGetTool struct{ sess *session.Context }

func (t *memoryGetTool) Name() string        { return "MemoryGet" }
func (t *memoryGetTool) Description() string { return "Read a value from session memory" }
func (t *memoryGetTool) Mutates() bool       { return false }
func (t *memoryGetTool) PrimaryArg() string  { return "key" }
func (t *memoryGetTool) ClaimKey(map[string]any) string {
	return ""
}

func (t *memoryGetTool) Execute(_ context.Context, input map[string]any) (string, error) {
	key, ok := stringArg(input, "key")
	if !ok {
		return "", fmt.Errorf("MemoryGet requires a key argument")
	}
	value, found := t.sess.Get(key)
	if !found {
		return "", fmt.Errorf("no memory entry for key %q", key)
	}
	return value, nil
}

type memorySetTool struct{ sess *session.Context }

func (t *memorySetTool) Name() string        { return "MemorySet" }
func (t *memorySetTool) Description() string { return "Write a value into session or persistent memory" }
func (t *memorySetTool) Mutates() bool       { return true }
func (t *memorySetTool) PrimaryArg() string  { return "key" }
func (t *memorySetTool) ClaimKey(map[string]any) string {
	// Memory keys are serialized per key by the session context, not by the
	// claim table.
	return ""
}

func (t *memorySetTool) Execute(_ context.Context, input map[string]any) (string, error) {
	key, ok := stringArg(input, "key")
	if !ok {
		return "", fmt.Errorf("MemorySet requires a key argument")
	}
	value, _ := stringArg(input, "value")
	scope := models.ScopeSession
	if s, ok := stringArg(input, "scope"); ok && s != "" {
		scope = models.MemoryScope(s)
	}
	writer, _ := stringArg(input, "writer_id")
	if err := t.sess.Set(key, value, scope, writer); err != nil {
		return "", err
	}
	return fmt.Sprintf("stored %s (%s scope)", key, scope), nil
}
