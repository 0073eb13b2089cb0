package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/services/booking-service/internal/domain"
	"github.com/google/uuid"
)

const Producer = "booking-service"

type BookingService struct {
	repo   domain.Repository
	bans   domain.BanChecker
	window time.Duration
	now    func() time.Time
}

func NewBookingService(repo domain.Repository, bans domain.BanChecker, window time.Duration) *BookingService {
	return &BookingService{repo: repo, bans: bans, window: window, now: time.Now}
}

// WithClock replaces the time source.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

func (s *BookingService) meta(ctx context.Context) events.Meta {
	return events.Meta{Producer: Producer, TraceID: appctx.GetRequestID(ctx), OccurredAt: s.now()}
}

func (s *BookingService) checkBan(ctx context.Context, a domain.Actor) error {
	if a.IsAdmin() {
		return nil
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

func (s *BookingService) Create(ctx context.Context, a domain.Actor, tourID string) (domain.Booking, error) {
	if err := s.checkBan(ctx, a); err != nil {
		return domain.Booking{}, err
	}

	return s.repo.Create(ctx, tourID, func(t domain.Tour) (domain.Booking, events.Outgoing, error) {
		b := domain.NewBooking(uuid.NewString(), t, a.UserID, s.now().UTC(), s.window)
		out, err := events.BookingMadeTopic.Encode(events.BookingMade{
			ID:         b.ID,
			Expiration: b.Expiration,
			Status:     string(b.Status),
			Tour:       events.TourRef{ID: b.TourID, Price: b.Price},
			UserID:     b.UserID,
			Sequence:   b.Sequence,
		}, s.meta(ctx))
		return b, out, err
	})
}

func (s *BookingService) Get(ctx context.Context, a domain.Actor, id string) (domain.Booking, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if !b.CanView(a) {
		return domain.Booking{}, domain.ErrForbidden
	}
	return b, nil
}

func (s *BookingService) ListMine(ctx context.Context, a domain.Actor) ([]domain.Booking, error) {
	return s.repo.ListByUser(ctx, a.UserID)
}

// Cancel is the user-facing cancellation.
func (s *BookingService) Cancel(ctx context.Context, a domain.Actor, id string) (domain.Booking, error) {
	if err := s.checkBan(ctx, a); err != nil {
		return domain.Booking{}, err
	}
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	next, changed, err := domain.CancelBy(cur, a, s.now().UTC())
	if err != nil || !changed {
		return next, err
	}
	if err := s.persist(ctx, cur, next, s.cancelledEvent); err != nil {
		return domain.Booking{}, err
	}
	return next, nil
}

// Expire runs the compensation for an expired payment window. It reports
// whether the booking changed.
func (s *BookingService) Expire(ctx context.Context, id string) (bool, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	next, changed := domain.Expire(cur, s.now().UTC())
	if !changed {
		return false, nil
	}
	return true, s.persist(ctx, cur, next, s.cancelledEvent)
}

// Complete marks a booking paid. It reports whether the booking changed.
func (s *BookingService) Complete(ctx context.Context, id string) (bool, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	next, changed := domain.Complete(cur, s.now().UTC())
	if !changed {
		return false, nil
	}
	return true, s.persist(ctx, cur, next, s.completedEvent)
}

func (s *BookingService) persist(ctx context.Context, cur, next domain.Booking, encode func(context.Context, domain.Booking) (events.Outgoing, error)) error {
	out, err := encode(ctx, next)
	if err != nil {
		return err
	}
	err = s.repo.Update(ctx, next, cur.Sequence, out)
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		return err
	}
	if err != nil {
		return fmt.Errorf("update booking %s: %w", next.ID, err)
	}
	return nil
}

func (s *BookingService) cancelledEvent(ctx context.Context, b domain.Booking) (events.Outgoing, error) {
	return events.BookingCancelledTopic.Encode(events.BookingCancelled{
		ID:       b.ID,
		Tour:     events.TourRef{ID: b.TourID},
		Sequence: b.Sequence,
	}, s.meta(ctx))
}

func (s *BookingService) completedEvent(ctx context.Context, b domain.Booking) (events.Outgoing, error) {
	return events.BookingCompletedTopic.Encode(events.BookingCompleted{
		ID:       b.ID,
		Tour:     events.TourRef{ID: b.TourID},
		Sequence: b.Sequence,
	}, s.meta(ctx))
}
