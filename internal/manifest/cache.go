package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// defaultCacheTTL matches spec §4.D's "Cache" contract (3600 seconds).
const defaultCacheTTL = 3600 * time.Second

// LoadCache reads a previously persisted manifest from path. It returns
// (zero, false, nil) if the file is absent or has exceeded ttl, and a
// non-nil error only for an unexpected read/parse failure — a stale or
// missing cache is not itself an error (spec's Open Question: the cache is
// only ever consulted at startup, never re-read mid-run).
func LoadCache(path string, ttl time.Duration) (Manifest, bool, error) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, false, nil
	}
	if err != nil {
		return Manifest{}, false, fmt.Errorf("manifest: reading cache %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, false, fmt.Errorf("manifest: parsing cache %s: %w", path, err)
	}
	if time.Since(m.GeneratedAt) > ttl {
		return Manifest{}, false, nil
	}
	return m, true, nil
}

// SaveCache persists m to path as indented JSON, creating path's parent
// directory (spec §6's "./cache/manifest.json") if it does not yet exist.
func SaveCache(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encoding cache: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("manifest: creating cache dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("manifest: writing cache %s: %w", path, err)
	}
	return nil
}

// WarmFromCache loads path if still fresh and installs it as the
// registry's current snapshot, firing the startup event. It is a no-op
// (returning false) when no fresh cache exists, leaving the caller to
// perform a live [Registry.Rebuild] instead.
func (r *Registry) WarmFromCache(path string) (bool, error) {
	m, ok, err := LoadCache(path, r.cacheTTL)
	if err != nil || !ok {
		return false, err
	}
	r.mu.Lock()
	r.current = m
	r.mu.Unlock()
	r.hooks.Fire(EventStartup, m)
	return true, nil
}
