package photo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const captureCacheVersion = 1

type captureCache struct {
	Version int                          `json:"version"`
	Entries map[string]captureCacheEntry `json:"entries"`
}

type captureCacheEntry struct {
	ModTime   int64     `json:"modTime"`
	Size      int64     `json:"size"`
	Zone      string    `json:"zone"`
	TakenTime time.Time `json:"takenTime"`
	Model     string    `json:"model"`
	HasGPS    bool      `json:"hasGPS"`
}

// readCaptureCache opens the cache at path. A missing file, a cache written
// by another version or a file that no longer decodes all start empty; only
// I/O failures are reported.
func readCaptureCache(path string) (*captureCache, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return newCaptureCache(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open capture cache: %w", err)
	}
	defer f.Close()

	var cache captureCache
	if err := json.NewDecoder(f).Decode(&cache); err != nil || cache.Version != captureCacheVersion || cache.Entries == nil {
		return newCaptureCache(), nil
	}
	return &cache, nil
}

// writeTo stores the cache at path through a uniquely named temp file in the
// same directory.
func (c *captureCache) writeTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create capture cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		tmp.Close()
		return fmt.Errorf("encode capture cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close capture cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace capture cache: %w", err)
	}
	return nil
}

func newCaptureCache() *captureCache {
	return &captureCache{
		Version: captureCacheVersion,
		Entries: make(map[string]captureCacheEntry),
	}
}

func (c *captureCache) get(path string, info os.FileInfo, loc *time.Location) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	entry, ok := c.Entries[path]
	if !ok || entry.ModTime != info.ModTime().UnixNano() || entry.Size != info.Size() || entry.Zone != loc.String() {
		return Record{}, false
	}
	return Record{
		Path:      path,
		TakenTime: entry.TakenTime.In(loc),
		Model:     entry.Model,
		HasGPS:    entry.HasGPS,
	}, true
}

func (c *captureCache) set(info os.FileInfo, loc *time.Location, rec Record) {
	if c == nil {
		return
	}
	c.Entries[rec.Path] = captureCacheEntry{
		ModTime:   info.ModTime().UnixNano(),
		Size:      info.Size(),
		Zone:      loc.String(),
		TakenTime: rec.TakenTime,
		Model:     rec.Model,
		HasGPS:    rec.HasGPS,
	}
}

// prune drops entries for files that no longer exist.
func (c *captureCache) prune() bool {
	if c == nil {
		return false
	}
	changed := false
	for path := range c.Entries {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			delete(c.Entries, path)
			changed = true
		}
	}
	return changed
}

// Loader loads photo records, reusing cached capture times for files whose
// size and modification time have not changed.
type Loader struct {
	loc       *time.Location
	cachePath string
	cache     *captureCache
	dirty     bool
}

// NewLoader returns a Loader interpreting capture times in loc. An empty
// cachePath disables caching.
func NewLoader(loc *time.Location, cachePath string) (*Loader, error) {
	l := &Loader{loc: loc, cachePath: cachePath}
	if cachePath == "" {
		return l, nil
	}
	cache, err := readCaptureCache(cachePath)
	if err != nil {
		return nil, err
	}
	l.cache = cache
	return l, nil
}

// Load returns the record for path, from the cache when it is still fresh.
func (l *Loader) Load(path string) (Record, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	var info os.FileInfo
	if l.cache != nil {
		if info, err = os.Stat(path); err == nil {
			if rec, ok := l.cache.get(abs, info, l.loc); ok {
				rec.Path = path
				return rec, nil
			}
		}
	}

	rec, err := Load(path, l.loc)
	if err != nil {
		return Record{}, err
	}
	if l.cache != nil && info != nil {
		cached := rec
		cached.Path = abs
		l.cache.set(info, l.loc, cached)
		l.dirty = true
	}
	return rec, nil
}

// Save writes the cache back to disk if it changed.
func (l *Loader) Save() error {
	if l.cache == nil {
		return nil
	}
	if l.cache.prune() {
		l.dirty = true
	}
	if !l.dirty {
		return nil
	}
	if err := l.cache.writeTo(l.cachePath); err != nil {
		return err
	}
	l.dirty = false
	return nil
}
