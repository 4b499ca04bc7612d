package gateway

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchRules hot-reloads the rule table when the permissions file changes.
// A reload that fails to parse keeps the previous tables; the gateway never
// drops to empty rules mid-run. The returned stop function shuts the watcher
// down.
func (g *Gateway) WatchRules(path string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files on save, which drops a
	// watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				rules, err := LoadRules(path)
				if err != nil {
					log.Printf("[gateway] rules reload failed, keeping previous tables: %v", err)
					continue
				}
				g.SetRules(rules)
				log.Printf("[gateway] rules reloaded from %s (%d deny, %d allow, mode %s)",
					path, len(rules.Deny), len(rules.Allow), rules.Mode)
			case <-watcher.Errors:
				// Keep watching.
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
