// Package memstore is an in-process implementation of the booking
// repository, the tour replica and the outbox, for tests and local runs.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/outbox"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/booking-service/internal/domain"
)

type outboxRow struct {
	rec    outbox.Record
	status string
	next   time.Time
}

type Store struct {
	Tours *replica.MemoryStore[domain.Tour]

	mu       sync.Mutex
	bookings map[string]domain.Booking
	rows     []*outboxRow
	now      func() time.Time
}

var (
	_ domain.Repository = (*Store)(nil)
	_ outbox.Store      = (*Store)(nil)
)

func New() *Store {
	return &Store{
		Tours:    replica.NewMemoryStore[domain.Tour](),
		bookings: make(map[string]domain.Booking),
		now:      time.Now,
	}
}

func (s *Store) Create(ctx context.Context, tourID string, build func(domain.Tour) (domain.Booking, events.Outgoing, error)) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Tours.Get(ctx, tourID)
	if errors.Is(err, replica.ErrNotFound) || (err == nil && rec.Deleted) {
		return domain.Booking{}, domain.ErrTourNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	for _, b := range s.bookings {
		if b.TourID == tourID && b.Status.Active() {
			return domain.Booking{}, domain.ErrTourAlreadyBooked
		}
	}

	b, out, err := build(rec.Data)
	if err != nil {
		return domain.Booking{}, err
	}
	s.bookings[b.ID] = b
	s.stage(out)
	return b, nil
}

func (s *Store) Get(_ context.Context, id string) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return b, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Update(_ context.Context, b domain.Booking, expected int64, out events.Outgoing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[b.ID]
	if !ok || cur.Sequence != expected {
		return domain.ErrConcurrentUpdate
	}
	s.bookings[b.ID] = b
	s.stage(out)
	return nil
}

func (s *Store) stage(out events.Outgoing) {
	now := s.now()
	s.rows = append(s.rows, &outboxRow{
		rec: outbox.Record{
			ID:        out.MessageID,
			Subject:   string(out.Subject),
			Body:      out.Body,
			CreatedAt: now,
		},
		status: outbox.StatusPending,
		next:   now,
	})
}

func (s *Store) Claim(_ context.Context, limit int, lease time.Duration) ([]outbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []outbox.Record
	for _, r := range s.rows {
		if len(out) == limit {
			break
		}
		if r.status == outbox.StatusPending && !r.next.After(now) {
			r.next = now.Add(lease)
			out = append(out, r.rec)
		}
	}
	return out, nil
}

func (s *Store) row(id string) *outboxRow {
	for _, r := range s.rows {
		if r.rec.ID == id {
			return r
		}
	}
	return &outboxRow{}
}

func (s *Store) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.row(id).status = outbox.StatusSent
	return nil
}

func (s *Store) MarkRetry(_ context.Context, id string, attempts int, next time.Time, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.row(id)
	r.rec.Attempts, r.next = attempts, next
	return nil
}

func (s *Store) MarkDead(_ context.Context, id string, attempts int, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.row(id)
	r.rec.Attempts, r.status = attempts, outbox.StatusDead
	return nil
}

// Staged returns the subjects of every outbox row in staging order.
func (s *Store) Staged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r.rec.Subject)
	}
	return out
}
