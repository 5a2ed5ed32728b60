// Package localstore is the terminal's durable key/value storage. It plays
// the role a browser's local storage plays for a web client: a handful of
// keys, each holding one encoded document, rewritten whole on every change.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotFound is returned by Get for a key that was never written
var ErrNotFound = errors.New("localstore: key not found")

// Store persists whole values under string keys. Put must be durable when it
// returns.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open returns the store selected by driver: "memory", "file" or "sqlite".
func Open(driver, path string, logger *slog.Logger) (Store, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return OpenFile(path)
	case "sqlite":
		return OpenSQLite(path, logger)
	default:
		return nil, fmt.Errorf("localstore: unknown driver %q", driver)
	}
}

// Memory is a non-durable Store for tests and kiosk demos
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Memory) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *Memory) Close() error { return nil }
