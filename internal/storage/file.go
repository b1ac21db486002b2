package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a Store persisted as a single JSON file. Writes go through a
// temp-file rename so a crash mid-write cannot corrupt the store.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

func OpenFile(path string) (*File, error) {
	f := &File{
		path:   path,
		values: make(map[string]string),
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}

	if err := json.Unmarshal(b, &f.values); err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", path, err)
	}

	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values[key] = value
	return f.flush()
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.values, key)
	return f.flush()
}

func (f *File) flush() error {
	b, err := json.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("storage: marshal: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}

	return nil
}
