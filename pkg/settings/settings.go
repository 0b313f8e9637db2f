// Package settings provides the key-value store that remembers the last
// applied schema of every table between process runs.
package settings

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("settings: store closed")

// Store is a small persistent key-value store with string and integer values.
// String and integer values live in separate key spaces.
type Store interface {
	// GetString returns the string stored under key; ok is false when absent.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)

	// SetString stores a string value.
	SetString(ctx context.Context, key, value string) error

	// GetInt returns the integer stored under key; ok is false when absent.
	GetInt(ctx context.Context, key string) (value int, ok bool, err error)

	// SetInt stores an integer value.
	SetInt(ctx context.Context, key string, value int) error

	// Close releases the store.
	Close() error
}

// BatchSetter is implemented by stores able to write several values
// atomically. The migration tracker uses it, when available, so a schema
// statement and its version are never persisted separately.
type BatchSetter interface {
	SetAll(ctx context.Context, strs map[string]string, ints map[string]int) error
}

// Lister is implemented by stores able to enumerate their string keys.
type Lister interface {
	StringKeys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryStore is an in-process Store, used in tests and for throwaway
// databases.
type MemoryStore struct {
	mu     sync.RWMutex
	strs   map[string]string
	ints   map[string]int
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strs: make(map[string]string),
		ints: make(map[string]int),
	}
}

func (m *MemoryStore) GetString(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *MemoryStore) SetString(ctx context.Context, key, value string) error {
	return m.SetAll(ctx, map[string]string{key: value}, nil)
}

func (m *MemoryStore) GetInt(ctx context.Context, key string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, false, ErrClosed
	}
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *MemoryStore) SetInt(ctx context.Context, key string, value int) error {
	return m.SetAll(ctx, nil, map[string]int{key: value})
}

// SetAll implements BatchSetter.
func (m *MemoryStore) SetAll(ctx context.Context, strs map[string]string, ints map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for k, v := range strs {
		m.strs[k] = v
	}
	for k, v := range ints {
		m.ints[k] = v
	}
	return nil
}

// StringKeys implements Lister.
func (m *MemoryStore) StringKeys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var keys []string
	for k := range m.strs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
