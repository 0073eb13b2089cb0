// Package memstore is an in-process implementation of the tour repository,
// its replicas and the aggregate recomputation, for tests and local runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
)

type Store struct {
	Bookings *replica.MemoryStore[domain.BookingRef]
	Reviews  *replica.MemoryStore[domain.ReviewRef]

	mu     sync.Mutex
	tours  map[string]domain.Tour
	staged []events.Outgoing
}

var (
	_ domain.Repository = (*Store)(nil)
	_ domain.Aggregates = (*Store)(nil)
)

func New() *Store {
	return &Store{
		Bookings: replica.NewMemoryStore[domain.BookingRef](),
		Reviews:  replica.NewMemoryStore[domain.ReviewRef](),
		tours:    make(map[string]domain.Tour),
	}
}

func (s *Store) Create(_ context.Context, t domain.Tour, out events.Outgoing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.tours {
		if cur.Name == t.Name {
			return domain.ErrDuplicateName
		}
	}
	s.tours[t.ID] = t
	s.staged = append(s.staged, out)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (domain.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tours[id]
	if !ok {
		return domain.Tour{}, domain.ErrTourNotFound
	}
	return t, nil
}

func (s *Store) List(_ context.Context, f domain.ListFilter) ([]domain.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Tour{}
	for _, t := range s.tours {
		if f.Difficulty == "" || t.Difficulty == f.Difficulty {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return []domain.Tour{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, t domain.Tour, expected int64, out events.Outgoing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tours[t.ID]
	if !ok || cur.Sequence != expected {
		return domain.ErrConcurrentUpdate
	}
	for id, other := range s.tours {
		if id != t.ID && other.Name == t.Name {
			return domain.ErrDuplicateName
		}
	}
	// derived fields are owned by the recompute path
	t.BookingID, t.RatingsAverage, t.RatingsCount = cur.BookingID, cur.RatingsAverage, cur.RatingsCount
	s.tours[t.ID] = t
	s.staged = append(s.staged, out)
	return nil
}

func (s *Store) Delete(_ context.Context, id string, expected int64, out events.Outgoing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tours[id]
	switch {
	case !ok || cur.Sequence != expected:
		return domain.ErrConcurrentUpdate
	case cur.BookingID != "":
		return domain.ErrTourBooked
	}
	delete(s.tours, id)
	s.staged = append(s.staged, out)
	return nil
}

func (s *Store) RecomputeBooking(_ context.Context, tourID string) error {
	var refs []replica.Record[domain.BookingRef]
	for _, r := range s.Bookings.All() {
		if r.Data.TourID == tourID {
			refs = append(refs, r)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tours[tourID]
	if !ok {
		return nil
	}
	t.BookingID = domain.ActiveBooking(refs)
	s.tours[tourID] = t
	return nil
}

func (s *Store) RecomputeRatings(_ context.Context, tourID string) error {
	var refs []replica.Record[domain.ReviewRef]
	for _, r := range s.Reviews.All() {
		if r.Data.TourID == tourID {
			refs = append(refs, r)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tours[tourID]
	if !ok {
		return nil
	}
	t.RatingsAverage, t.RatingsCount = domain.Ratings(refs)
	s.tours[tourID] = t
	return nil
}

// Put stores t as is, bypassing validation and the outbox.
func (s *Store) Put(t domain.Tour) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tours[t.ID] = t
}

// Staged returns every staged event in order.
func (s *Store) Staged() []events.Outgoing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Outgoing(nil), s.staged...)
}
