package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// File keeps every key in one JSON object on disk. Each Put rewrites the
// file through a temp file and rename, so a crash leaves either the old or
// the new document, never a torn one.
type File struct {
	mu   sync.Mutex
	path string
	data map[string]json.RawMessage
}

// OpenFile loads path, creating an empty store if it does not exist
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("localstore: file path is required")
	}
	f := &File{path: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("localstore: reading %s: %w", path, err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("localstore: decoding %s: %w", path, err)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores value, which must itself be valid JSON
func (f *File) Put(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("localstore: value for %q is not JSON", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.data[key]
	f.data[key] = append(json.RawMessage(nil), value...)
	if err := f.flush(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Close() error { return nil }

func (f *File) flush() error {
	encoded, err := json.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("localstore: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("localstore: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("localstore: writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("localstore: syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localstore: closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("localstore: replacing %s: %w", f.path, err)
	}
	return nil
}
