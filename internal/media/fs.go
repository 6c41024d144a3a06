// Package media implements the Media Pipeline (C5): a bounded queue of
// download work, drained by a capped-concurrency pool of workers.
package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// ensureDir creates dir (and parents) if it does not already exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("media: mkdir %s: %w", dir, err)
	}
	return nil
}

// exists reports whether path is present, treating any stat error other
// than "not found" as unknown (caller proceeds to attempt the download and
// surface the real error).
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func joinDest(dir, filename string) string {
	return filepath.Join(dir, filename)
}
