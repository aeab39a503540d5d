package prefs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// ThemeKey is the only key persisted
const ThemeKey = "theme"

// Store persists preference values by key. Get returns ok=false for unknown keys.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// BadgerStore persists preferences in a badger database
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a badger database at path.
// An empty path keeps the database in memory.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already opened database
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Get reads a value
func (s *BadgerStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes a value
func (s *BadgerStore) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// MemoryStore keeps preferences in a map
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
