package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/expense-ledger/internal/domain"
)

// MemoryStore is an in-memory implementation of Store.
// It is safe for concurrent use and keeps records in insertion order.
// Data is lost on restart; it backs tests and the "memory" remote backend.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.Record
	order   []string
	failErr error
}

// NewMemoryStore creates a store seeded with recs.
func NewMemoryStore(recs ...domain.Record) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]domain.Record),
	}
	for _, rec := range recs {
		s.put(rec)
	}
	return s
}

// SetFailure makes every call return err until called with nil.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// ListAll implements Store.
func (s *MemoryStore) ListAll(ctx context.Context) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failErr != nil {
		return nil, s.failErr
	}

	out := make([]domain.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, recs []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("Upsert: record id is required")
		}
	}
	for _, rec := range recs {
		s.put(rec)
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	if _, ok := s.records[id]; !ok {
		return nil
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// put must be called with s.mu held.
func (s *MemoryStore) put(rec domain.Record) {
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
