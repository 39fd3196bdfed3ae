// Package sidecache keeps a flat JSON copy of the layout positions next to
// the database, keyed by device id. Older deployments kept positions only in
// this file; it is imported once when the relational table is empty.
package sidecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"netmirror/internal/domain"
)

// File is a positions cache on disk. A File with an empty path is disabled
// and every method is a no-op.
type File struct {
	mu   sync.Mutex
	path string
}

// New creates a cache at path
func New(path string) *File {
	return &File{path: strings.TrimSpace(path)}
}

// Enabled reports whether a path is configured
func (f *File) Enabled() bool {
	return f != nil && f.path != ""
}

// Path returns the configured file path
func (f *File) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

// Load reads the cache. A missing file yields an empty map.
func (f *File) Load() (map[int64]domain.Point, error) {
	out := make(map[int64]domain.Point)
	if !f.Enabled() {
		return out, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("failed to read positions cache: %w", err)
	}

	raw := make(map[string]domain.Point)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse positions cache: %w", err)
	}
	for key, pt := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid device id %q in positions cache", key)
		}
		out[id] = pt
	}
	return out, nil
}

// Save replaces the cache with positions
func (f *File) Save(positions map[int64]domain.Point) error {
	if !f.Enabled() {
		return nil
	}

	raw := make(map[string]domain.Point, len(positions))
	for id, pt := range positions {
		raw[strconv.FormatInt(id, 10)] = pt
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode positions cache: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write positions cache: %w", err)
	}
	return os.Rename(tmp, f.path)
}
