package store

import (
	"context"
	"sync"
)

// MemoryStore holds the encoded record in memory. Saves counts successful
// writes so tests can assert persistence behaviour.
type MemoryStore struct {
	mu    sync.Mutex
	doc   []byte
	saves int
}

// NewMemoryStore returns a store seeded with doc (may be nil).
func NewMemoryStore(doc []byte) *MemoryStore {
	return &MemoryStore{doc: append([]byte(nil), doc...)}
}

func (s *MemoryStore) Load(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Decode(s.doc)
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = data
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Document returns a copy of the stored bytes.
func (s *MemoryStore) Document() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.doc...)
}
