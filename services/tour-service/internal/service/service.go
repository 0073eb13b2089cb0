package service

import (
	"context"
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
	"github.com/google/uuid"
)

const Producer = "tour-service"

type TourService struct {
	repo domain.Repository
	bans domain.BanChecker
	now  func() time.Time
}

func NewTourService(repo domain.Repository, bans domain.BanChecker) *TourService {
	return &TourService{repo: repo, bans: bans, now: time.Now}
}

func (s *TourService) WithClock(now func() time.Time) *TourService {
	s.now = now
	return s
}

func (s *TourService) authorize(ctx context.Context, a domain.Actor) error {
	if !a.IsAdmin() {
		return domain.ErrForbidden
	}
	banned, err := s.bans.IsBanned(ctx, a.UserID)
	if err != nil {
		return fmt.Errorf("ban lookup: %w", err)
	}
	if banned {
		return domain.ErrUserBanned
	}
	return nil
}

func (s *TourService) Create(ctx context.Context, a domain.Actor, f domain.Fields) (domain.Tour, error) {
	if err := s.authorize(ctx, a); err != nil {
		return domain.Tour{}, err
	}

	now := s.now().UTC()
	t, err := domain.NewTour(uuid.NewString(), f, now)
	if err != nil {
		return domain.Tour{}, err
	}

	out, err := events.TourCreatedTopic.Encode(t.Payload(), events.Meta{
		Producer: Producer, TraceID: appctx.GetRequestID(ctx), OccurredAt: now,
	})
	if err != nil {
		return domain.Tour{}, err
	}
	if err := s.repo.Create(ctx, t, out); err != nil {
		return domain.Tour{}, err
	}
	return t, nil
}

// Update applies p with a compare-and-set on the tour's sequence. A patch
// that changes nothing publishes nothing.
func (s *TourService) Update(ctx context.Context, a domain.Actor, id string, p domain.Patch) (domain.Tour, error) {
	if err := s.authorize(ctx, a); err != nil {
		return domain.Tour{}, err
	}

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Tour{}, err
	}

	now := s.now().UTC()
	next, changed, err := domain.Apply(cur, p, now)
	if err != nil {
		return domain.Tour{}, err
	}
	if !changed {
		return cur, nil
	}

	out, err := events.TourUpdatedTopic.Encode(events.TourUpdated(next.Payload()), events.Meta{
		Producer: Producer, TraceID: appctx.GetRequestID(ctx), OccurredAt: now,
	})
	if err != nil {
		return domain.Tour{}, err
	}
	if err := s.repo.Update(ctx, next, cur.Sequence, out); err != nil {
		return domain.Tour{}, err
	}
	return next, nil
}

// Delete removes a tour that no active booking holds.
func (s *TourService) Delete(ctx context.Context, a domain.Actor, id string) error {
	if err := s.authorize(ctx, a); err != nil {
		return err
	}

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.BookingID != "" {
		return domain.ErrTourBooked
	}

	out, err := events.TourDeletedTopic.Encode(cur.DeletedPayload(), events.Meta{
		Producer: Producer, TraceID: appctx.GetRequestID(ctx), OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, cur.ID, cur.Sequence, out)
}

func (s *TourService) Get(ctx context.Context, id string) (domain.Tour, error) {
	return s.repo.Get(ctx, id)
}

func (s *TourService) List(ctx context.Context, f domain.ListFilter) ([]domain.Tour, error) {
	if f.Difficulty != "" && !f.Difficulty.Valid() {
		return nil, domain.ErrInvalidTour
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}
