package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/services/auth-service/internal/domain"
	"github.com/google/uuid"
)

const Producer = "auth-service"

type UserService struct {
	repo domain.Repository
	now  func() time.Time
}

func NewUserService(repo domain.Repository) *UserService {
	return &UserService{repo: repo, now: time.Now}
}

func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// Register stores a new user record. Registration publishes nothing: other
// services only learn about a user once its ban state changes.
func (s *UserService) Register(ctx context.Context, a domain.Actor, email string, role domain.Role) (domain.User, error) {
	if !a.IsAdmin() {
		return domain.User{}, domain.ErrForbidden
	}
	u, err := domain.NewUser(uuid.NewString(), email, role, s.now().UTC())
	if err != nil {
		return domain.User{}, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *UserService) Ban(ctx context.Context, a domain.Actor, id string) (domain.User, error) {
	return s.setBanned(ctx, a, id, true)
}

func (s *UserService) Unban(ctx context.Context, a domain.Actor, id string) (domain.User, error) {
	return s.setBanned(ctx, a, id, false)
}

func (s *UserService) setBanned(ctx context.Context, a domain.Actor, id string, banned bool) (domain.User, error) {
	action := "user.unban"
	topic := events.UserUnbannedTopic
	if banned {
		action = "user.ban"
		topic = events.UserBannedTopic
	}
	audit := func(result string, err error) {
		ev := logger.WithCtx(ctx).Info()
		if err != nil {
			ev = logger.WithCtx(ctx).Warn().Err(err)
		}
		ev.Str("action", action).
			Str("actor_id", a.UserID).
			Str("target_id", id).
			Str("result", result).
			Msg("audit")
	}

	if !a.IsAdmin() {
		audit("error", domain.ErrForbidden)
		return domain.User{}, domain.ErrForbidden
	}
	if a.UserID == id {
		audit("error", domain.ErrCannotModerateSelf)
		return domain.User{}, domain.ErrCannotModerateSelf
	}

	// admins bootstrapped outside this service have no user row
	actor, err := s.repo.Get(ctx, a.UserID)
	switch {
	case err == nil && actor.Banned:
		audit("error", domain.ErrUserBanned)
		return domain.User{}, domain.ErrUserBanned
	case err != nil && !errors.Is(err, domain.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("load actor %s: %w", a.UserID, err)
	}

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		audit("error", err)
		return domain.User{}, err
	}

	now := s.now().UTC()
	next, changed := domain.SetBanned(cur, banned, now)
	if !changed {
		audit("noop", nil)
		return cur, nil
	}

	out, err := topic.Encode(next.BanPayload(), events.Meta{
		Producer:   Producer,
		TraceID:    appctx.GetRequestID(ctx),
		OccurredAt: now,
	})
	if err != nil {
		return domain.User{}, err
	}
	if err := s.repo.Update(ctx, next, cur.Sequence, out); err != nil {
		audit("error", err)
		return domain.User{}, fmt.Errorf("%s %s: %w", action, id, err)
	}

	audit("success", nil)
	return next, nil
}

func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	return s.repo.Get(ctx, id)
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
