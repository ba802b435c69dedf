// Package kvstore is durable client-side string storage shared by every
// process that points at the same state file.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/staykeep/internal/atomicfile"
)

// Store is a string key-value store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns a Memory seeded with initial.
func NewMemory(initial map[string]string) *Memory {
	m := &Memory{data: make(map[string]string, len(initial))}
	for k, v := range initial {
		m.data[k] = v
	}
	return m
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// File keeps the map as one JSON document on disk. Writes re-read the file
// first so keys written by other processes survive; there is no cross-process
// lock, so two simultaneous writers still race.
type File struct {
	path string

	mu   sync.Mutex
	data map[string]string
}

// OpenFile loads path, treating a missing file as empty.
func OpenFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("kvstore: resolve path: %w", err)
	}
	f := &File{path: abs}
	data, err := f.load()
	if err != nil {
		return nil, err
	}
	f.data = data
	return f, nil
}

// Path returns the absolute path of the state file.
func (f *File) Path() string { return f.path }

func (f *File) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: read %s: %w", f.path, err)
	}
	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("kvstore: decode %s: %w", f.path, err)
	}
	return data, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	return f.mutate(func(m map[string]string) { m[key] = value })
}

func (f *File) Remove(key string) error {
	return f.mutate(func(m map[string]string) { delete(m, key) })
}

func (f *File) mutate(apply func(map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	apply(data)
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: encode: %w", err)
	}
	if err := atomicfile.Write(f.path, raw, 0o600); err != nil {
		return err
	}
	f.data = data
	return nil
}

// Reload re-reads the file and returns the keys whose value changed.
func (f *File) Reload() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return nil, err
	}
	var changed []string
	for k, v := range data {
		if old, ok := f.data[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range f.data {
		if _, ok := data[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	f.data = data
	return changed, nil
}

// Watch reloads the file whenever another process replaces it and calls fn
// with the changed keys. It blocks until ctx is cancelled.
func (f *File) Watch(ctx context.Context, logger *slog.Logger, fn func(keys []string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kvstore: mkdir: %w", err)
	}
	// Writes land via rename, so the directory is watched, not the file.
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("kvstore: watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case <-fire:
			fire = nil
			changed, err := f.Reload()
			if err != nil {
				logger.Warn("kvstore: reload failed", slog.String("error", err.Error()))
				continue
			}
			if len(changed) > 0 && fn != nil {
				fn(changed)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(50 * time.Millisecond)
			} else {
				debounce.Reset(50 * time.Millisecond)
			}
			fire = debounce.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("kvstore: watcher error", slog.String("error", err.Error()))
		}
	}
}
