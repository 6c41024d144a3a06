package registry

import (
	"path/filepath"
	"testing"

	"github.com/Berektassuly/tg-sync/internal/domain"
)

func TestPutLookupInvalidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entry := domain.EntityEntry{PeerID: 7, AccessHash: 999, Kind: domain.DialogChannel}
	if err := r.Put(entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := r.Lookup(7)
	if !ok || got != entry {
		t.Fatalf("Lookup = %+v, %v; want %+v, true", got, ok, entry)
	}

	if err := r.Invalidate(7); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := r.Lookup(7); ok {
		t.Fatal("Lookup after Invalidate still present")
	}
}

func TestSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := r.Put(domain.EntityEntry{PeerID: 1, AccessHash: 2, Kind: domain.DialogUser}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load reloaded: %v", err)
	}
	if _, ok := reloaded.Lookup(1); !ok {
		t.Fatal("Lookup after reload missing entry")
	}
}
