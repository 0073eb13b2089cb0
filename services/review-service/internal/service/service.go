package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/review-service/internal/domain"
	"github.com/google/uuid"
)

const Producer = "review-service"

type TourReader interface {
	Get(ctx context.Context, id string) (replica.Record[domain.Tour], error)
}

type CreateInput struct {
	Rating int
	Title  string
	Text   string
}

type ReviewService struct {
	repo  domain.Repository
	tours TourReader
	bans  domain.BanChecker
	now   func() time.Time
}

func NewReviewService(repo domain.Repository, tours TourReader, bans domain.BanChecker) *ReviewService {
	return &ReviewService{repo: repo, tours: tours, bans: bans, now: time.Now}
}

func (s *ReviewService) WithClock(now func() time.Time) *ReviewService {
	s.now = now
	return s
}

func (s *ReviewService) checkBan(ctx context.Context, userID string) error {
	banned, err := s.bans.IsBanned(ctx, userID)
	if err != nil {
		return fmt.Errorf("ban lookup: %w", err)
	}
	if banned {
		return domain.ErrUserBanned
	}
	return nil
}

func (s *ReviewService) meta(ctx context.Context, now time.Time) events.Meta {
	return events.Meta{Producer: Producer, TraceID: appctx.GetRequestID(ctx), OccurredAt: now}
}

// Create stores a review at sequence 0 together with its review:created event.
func (s *ReviewService) Create(ctx context.Context, a domain.Actor, tourID string, in CreateInput) (domain.Review, error) {
	if err := s.checkBan(ctx, a.UserID); err != nil {
		return domain.Review{}, err
	}

	tour, err := s.tours.Get(ctx, tourID)
	if errors.Is(err, replica.ErrNotFound) || (err == nil && tour.Deleted) {
		return domain.Review{}, domain.ErrTourNotFound
	}
	if err != nil {
		return domain.Review{}, fmt.Errorf("load tour %s: %w", tourID, err)
	}

	now := s.now().UTC()
	rv, err := domain.NewReview(uuid.NewString(), tourID, a.UserID, in.Rating, in.Title, in.Text, now)
	if err != nil {
		return domain.Review{}, err
	}

	out, err := events.ReviewCreatedTopic.Encode(events.ReviewCreated{
		ID:       rv.ID,
		TourID:   rv.TourID,
		UserID:   rv.UserID,
		Rating:   rv.Rating,
		Sequence: rv.Sequence,
	}, s.meta(ctx, now))
	if err != nil {
		return domain.Review{}, err
	}

	if err := s.repo.Create(ctx, rv, out); err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

// Update applies p to the caller's own review. A patch that changes nothing
// returns the review as is and publishes nothing.
func (s *ReviewService) Update(ctx context.Context, a domain.Actor, id string, p domain.Patch) (domain.Review, error) {
	if err := s.checkBan(ctx, a.UserID); err != nil {
		return domain.Review{}, err
	}

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	if !cur.CanModify(a) {
		return domain.Review{}, domain.ErrForbidden
	}

	now := s.now().UTC()
	next, changed, err := domain.Apply(cur, p, now)
	if err != nil {
		return domain.Review{}, err
	}
	if !changed {
		return cur, nil
	}

	out, err := events.ReviewUpdatedTopic.Encode(events.ReviewUpdated{
		ID:       next.ID,
		TourID:   next.TourID,
		UserID:   next.UserID,
		Rating:   next.Rating,
		Sequence: next.Sequence,
	}, s.meta(ctx, now))
	if err != nil {
		return domain.Review{}, err
	}

	if err := s.repo.Update(ctx, next, cur.Sequence, out); err != nil {
		return domain.Review{}, err
	}
	return next, nil
}

// Delete removes a review. The review:deleted event carries the sequence the
// deletion would have had as an update so replicas can order it.
func (s *ReviewService) Delete(ctx context.Context, a domain.Actor, id string) error {
	if !a.IsAdmin() {
		if err := s.checkBan(ctx, a.UserID); err != nil {
			return err
		}
	}

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !cur.CanDelete(a) {
		return domain.ErrForbidden
	}

	out, err := events.ReviewDeletedTopic.Encode(events.ReviewDeleted{
		ID:       cur.ID,
		TourID:   cur.TourID,
		Sequence: cur.Sequence + 1,
	}, s.meta(ctx, s.now().UTC()))
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, cur.ID, cur.Sequence, out)
}

func (s *ReviewService) Get(ctx context.Context, id string) (domain.Review, error) {
	return s.repo.Get(ctx, id)
}

func (s *ReviewService) ListByTour(ctx context.Context, tourID string, limit, offset int) ([]domain.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByTour(ctx, tourID, limit, offset)
}
