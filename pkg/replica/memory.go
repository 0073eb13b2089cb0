package replica

import (
	"context"
	"sync"
)

// MemoryStore is a Store backed by a map. Compare-and-set is atomic under its mutex.
type MemoryStore[T any] struct {
	mu   sync.Mutex
	recs map[string]Record[T]
}

var _ Store[struct{}] = (*MemoryStore[struct{}])(nil)

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{recs: make(map[string]Record[T])}
}

func (m *MemoryStore[T]) Get(_ context.Context, id string) (Record[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return Record[T]{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore[T]) Insert(_ context.Context, rec Record[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; ok {
		return ErrExists
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryStore[T]) UpdateIf(_ context.Context, rec Record[T], expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.recs[rec.ID]
	if !ok || cur.Deleted || cur.Sequence != expected {
		return ErrPreconditionFailed
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryStore[T]) DeleteIf(_ context.Context, id string, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.recs[id]
	if !ok || cur.Deleted || cur.Sequence != expected {
		return ErrPreconditionFailed
	}
	cur.Deleted = true
	cur.Sequence = expected + 1
	m.recs[id] = cur
	return nil
}

// All returns live (non-tombstoned) records.
func (m *MemoryStore[T]) All() []Record[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record[T], 0, len(m.recs))
	for _, r := range m.recs {
		if !r.Deleted {
			out = append(out, r)
		}
	}
	return out
}
