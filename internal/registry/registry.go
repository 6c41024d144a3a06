// Package registry implements the Entity Registry (C4): a persisted cache
// of resolved peer identities, so the engine doesn't have to re-resolve a
// peer's access handle on every run. Uses the same atomic JSON file
// technique as internal/checkpoint.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Berektassuly/tg-sync/internal/domain"
)

type Registry struct {
	mu      sync.RWMutex
	path    string
	entries map[int64]domain.EntityEntry
}

func Load(path string) (*Registry, error) {
	r := &Registry{path: path, entries: make(map[int64]domain.EntityEntry)}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	if len(b) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(b, &r.entries); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	return r, nil
}

func (r *Registry) Lookup(peerID int64) (domain.EntityEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[peerID]
	return e, ok
}

func (r *Registry) Put(entry domain.EntityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.PeerID] = entry
	return r.flushLocked()
}

// Invalidate drops a cached entry, forcing the next ResolvePeer call to hit
// the gateway again. Nothing in the engine calls it on a gateway error; an
// entry is only dropped by an explicit call.
func (r *Registry) Invalidate(peerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[peerID]; !ok {
		return nil
	}
	delete(r.entries, peerID)
	return r.flushLocked()
}

func (r *Registry) flushLocked() error {
	b, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("registry: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("registry: rename: %w", err)
	}
	return nil
}
