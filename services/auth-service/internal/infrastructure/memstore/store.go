// Package memstore keeps users in memory for tests and local runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/services/auth-service/internal/domain"
)

type Store struct {
	mu     sync.Mutex
	users  map[string]domain.User
	staged []events.Outgoing
}

var _ domain.Repository = (*Store)(nil)

func New() *Store {
	return &Store{users: make(map[string]domain.User)}
}

func (s *Store) Create(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.users {
		if cur.Email == u.Email {
			return domain.ErrEmailTaken
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) Get(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) List(_ context.Context, limit, offset int) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []domain.User{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, u domain.User, expected int64, out events.Outgoing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok || cur.Sequence != expected {
		return domain.ErrConcurrentUpdate
	}
	s.users[u.ID] = u
	s.staged = append(s.staged, out)
	return nil
}

// Put stores u as-is, bypassing the email check.
func (s *Store) Put(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Staged returns the events written alongside updates, oldest first.
func (s *Store) Staged() []events.Outgoing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Outgoing(nil), s.staged...)
}
