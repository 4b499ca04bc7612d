package orchestrator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/loom/pkg/models"
)

// ErrResourceClaimed indicates another worker already holds an overlapping
// claim. Under the pre-dispatch disjointness gate this should never fire for
// subtasks in the same wave; seeing it means the isolation invariant broke.
var ErrResourceClaimed = errors.New("resource already claimed")

// ErrNotClaimOwner indicates a release for a claim the worker does not hold.
var ErrNotClaimOwner = errors.New("claim not owned by worker")

// ClaimRegistry is the claim table for one dispatch batch: it maps normalized
// resource keys to the worker currently holding them. It exists as
// instrumentation — the disjointness gate prevents contention up front, and
// the registry verifies that no two concurrent workers ever hold overlapping
// keys.
type ClaimRegistry struct {
	mu     sync.Mutex
	claims map[string]string
}

// NewClaimRegistry creates an empty claim table.
func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{claims: make(map[string]string)}
}

// Acquire claims every key for the worker, atomically: on any conflict
// nothing is claimed and the error names the key and its holder.
func (r *ClaimRegistry) Acquire(workerID string, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range keys {
		key = models.NormalizeResourceKey(key)
		for held, holder := range r.claims {
			if holder != workerID && models.ResourceKeysOverlap(held, key) {
				return fmt.Errorf("%w: %s overlaps %s held by %s", ErrResourceClaimed, key, held, holder)
			}
		}
	}

	for _, key := range keys {
		if key = models.NormalizeResourceKey(key); key != "" {
			r.claims[key] = workerID
		}
	}
	return nil
}

// ReleaseAll drops every claim the worker holds.
func (r *ClaimRegistry) ReleaseAll(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, holder := range r.claims {
		if holder == workerID {
			delete(r.claims, key)
		}
	}
}

// Release drops one claim; the worker must hold it.
func (r *ClaimRegistry) Release(workerID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key = models.NormalizeResourceKey(key)
	holder, ok := r.claims[key]
	if !ok || holder != workerID {
		return fmt.Errorf("%w: %s", ErrNotClaimOwner, key)
	}
	delete(r.claims, key)
	return nil
}

// Holder returns the worker holding a key, if any.
func (r *ClaimRegistry) Holder(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	holder, ok := r.claims[models.NormalizeResourceKey(key)]
	return holder, ok
}

// Active returns a copy of the current claim table.
func (r *ClaimRegistry) Active() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.claims))
	for k, v := range r.claims {
		out[k] = v
	}
	return out
}
