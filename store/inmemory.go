package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	gferrors "github.com/sweetpotato0/gramflow/errors"
)

// InMemoryStore keeps records in a map. It is the default backend and the
// one tests use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	closed  bool
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
	}
}

// Save stores a copy of rec, overwriting any record with the same ID.
func (s *InMemoryStore) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gferrors.ErrStoreClosed
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Load returns a copy of the record with the given ID.
func (s *InMemoryStore) Load(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, gferrors.ErrStoreClosed
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, gferrors.ErrRecordNotFound)
	}
	return rec.Clone(), nil
}

// Delete removes a record. Deleting a missing record is an error so
// callers can distinguish it from success.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gferrors.ErrStoreClosed
	}
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("run %s: %w", id, gferrors.ErrRecordNotFound)
	}
	delete(s.records, id)
	return nil
}

// List returns records newest first.
func (s *InMemoryStore) List(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, gferrors.ErrStoreClosed
	}
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, gferrors.ErrStoreClosed
	}
	return len(s.records), nil
}

// Exists reports whether a record with the given ID is stored.
func (s *InMemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, gferrors.ErrStoreClosed
	}
	_, ok := s.records[id]
	return ok, nil
}

// Clear removes every record.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gferrors.ErrStoreClosed
	}
	s.records = make(map[string]*Record)
	return nil
}

// Close marks the store closed; all later calls fail with ErrStoreClosed.
func (s *InMemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
