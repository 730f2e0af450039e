// Package imagestore is a tiny filesystem-backed store for images
// referenced in cell conversations. ContextBuilder's image-culling policy
// (spec §4.4 rule 6) saves image bytes here and keeps only the path in
// conversation history, so follow-up calls never re-ship image bytes.
package imagestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store saves and resolves image bytes under a root directory.
type Store struct {
	root string
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagestore: mkdir %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Save writes data to disk under a content-addressed name and returns its
// path. Saving the same bytes twice returns the same path without
// rewriting.
func (s *Store) Save(data []byte, ext string) (string, error) {
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + ext
	path := filepath.Join(s.root, name)

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("imagestore: write %s: %w", path, err)
	}
	return path, nil
}

// Load reads back the bytes at path.
func (s *Store) Load(path string) ([]byte, error) {
	return os.ReadFile(path)
}
