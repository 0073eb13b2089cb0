package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/review-service/internal/domain"
	"github.com/baechuer/tour-booking/services/review-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Create(ctx context.Context, r domain.Review, out events.Outgoing) error {
	return m.Called(ctx, r, out).Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (domain.Review, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Review), args.Error(1)
}

func (m *MockRepo) ListByTour(ctx context.Context, tourID string, limit, offset int) ([]domain.Review, error) {
	args := m.Called(ctx, tourID, limit, offset)
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *MockRepo) Update(ctx context.Context, r domain.Review, expected int64, out events.Outgoing) error {
	return m.Called(ctx, r, expected, out).Error(0)
}

func (m *MockRepo) Delete(ctx context.Context, id string, expected int64, out events.Outgoing) error {
	return m.Called(ctx, id, expected, out).Error(0)
}

type MockBans struct{ mock.Mock }

func (m *MockBans) IsBanned(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

var (
	now    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	author = domain.Actor{UserID: "u1", Role: "user"}
	admin  = domain.Actor{UserID: "a1", Role: "admin"}
)

type fixture struct {
	svc   *service.ReviewService
	repo  *MockRepo
	bans  *MockBans
	tours *replica.MemoryStore[domain.Tour]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  new(MockRepo),
		bans:  new(MockBans),
		tours: replica.NewMemoryStore[domain.Tour](),
	}
	ctx := context.Background()
	require.NoError(t, f.tours.Insert(ctx, replica.Record[domain.Tour]{ID: "t1", Data: domain.Tour{Name: "Forest Hiker"}}))
	require.NoError(t, f.tours.Insert(ctx, replica.Record[domain.Tour]{ID: "t-gone", Sequence: 4, Deleted: true}))
	f.svc = service.NewReviewService(f.repo, f.tours, f.bans).WithClock(func() time.Time { return now })
	return f
}

func existing(seq int64) domain.Review {
	return domain.Review{ID: "r1", TourID: "t1", UserID: "u1", Rating: 3, Text: "ok", Sequence: seq, CreatedAt: now, UpdatedAt: now}
}

func TestCreate_StagesEventAtSequenceZero(t *testing.T) {
	f := newFixture(t)
	ctx := appctx.WithRequestID(context.Background(), "req-1")
	f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)

	var staged events.Outgoing
	f.repo.On("Create", mock.Anything, mock.AnythingOfType("domain.Review"), mock.AnythingOfType("events.Outgoing")).
		Run(func(args mock.Arguments) { staged = args.Get(2).(events.Outgoing) }).
		Return(nil)

	rv, err := f.svc.Create(ctx, author, "t1", service.CreateInput{Rating: 5, Text: "Fantastic"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rv.Sequence)
	assert.Equal(t, now, rv.CreatedAt)

	env, err := events.ReviewCreatedTopic.Decode(staged.Body)
	require.NoError(t, err)
	assert.Equal(t, events.ReviewCreated{ID: rv.ID, TourID: "t1", UserID: "u1", Rating: 5, Sequence: 0}, env.Payload)
	assert.Equal(t, service.Producer, env.Producer)
	assert.Equal(t, "req-1", env.TraceID)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		tour   string
		rating int
		banned bool
		repo   error
		want   error
	}{
		{name: "banned", tour: "t1", rating: 4, banned: true, want: domain.ErrUserBanned},
		{name: "unknown tour", tour: "t404", rating: 4, want: domain.ErrTourNotFound},
		{name: "deleted tour", tour: "t-gone", rating: 4, want: domain.ErrTourNotFound},
		{name: "rating out of range", tour: "t1", rating: 6, want: domain.ErrInvalidRating},
		{name: "already reviewed", tour: "t1", rating: 4, repo: domain.ErrAlreadyReviewed, want: domain.ErrAlreadyReviewed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.bans.On("IsBanned", mock.Anything, "u1").Return(tt.banned, nil)
			if tt.repo != nil {
				f.repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(tt.repo)
			}

			_, err := f.svc.Create(context.Background(), author, tt.tour, service.CreateInput{Rating: tt.rating, Text: "text"})
			assert.ErrorIs(t, err, tt.want)
			if tt.repo == nil {
				f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestUpdate_AdvancesSequence(t *testing.T) {
	f := newFixture(t)
	f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
	f.repo.On("Get", mock.Anything, "r1").Return(existing(2), nil)

	var staged events.Outgoing
	f.repo.On("Update", mock.Anything, mock.AnythingOfType("domain.Review"), int64(2), mock.AnythingOfType("events.Outgoing")).
		Run(func(args mock.Arguments) { staged = args.Get(3).(events.Outgoing) }).
		Return(nil)

	rating := 1
	rv, err := f.svc.Update(context.Background(), author, "r1", domain.Patch{Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, int64(3), rv.Sequence)

	env, err := events.ReviewUpdatedTopic.Decode(staged.Body)
	require.NoError(t, err)
	assert.Equal(t, events.ReviewUpdated{ID: "r1", TourID: "t1", UserID: "u1", Rating: 1, Sequence: 3}, env.Payload)
}

func TestUpdate_NoChangePublishesNothing(t *testing.T) {
	f := newFixture(t)
	f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
	f.repo.On("Get", mock.Anything, "r1").Return(existing(2), nil)

	rating := 3
	rv, err := f.svc.Update(context.Background(), author, "r1", domain.Patch{Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rv.Sequence)
	f.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdate_Rejections(t *testing.T) {
	rating := 4

	t.Run("only the author edits", func(t *testing.T) {
		f := newFixture(t)
		f.bans.On("IsBanned", mock.Anything, "a1").Return(false, nil)
		f.repo.On("Get", mock.Anything, "r1").Return(existing(0), nil)

		_, err := f.svc.Update(context.Background(), admin, "r1", domain.Patch{Rating: &rating})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("lost race", func(t *testing.T) {
		f := newFixture(t)
		f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
		f.repo.On("Get", mock.Anything, "r1").Return(existing(0), nil)
		f.repo.On("Update", mock.Anything, mock.Anything, int64(0), mock.Anything).Return(domain.ErrConcurrentUpdate)

		_, err := f.svc.Update(context.Background(), author, "r1", domain.Patch{Rating: &rating})
		assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture(t)
		f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
		f.repo.On("Get", mock.Anything, "r9").Return(domain.Review{}, domain.ErrReviewNotFound)

		_, err := f.svc.Update(context.Background(), author, "r9", domain.Patch{Rating: &rating})
		assert.ErrorIs(t, err, domain.ErrReviewNotFound)
	})
}

func TestDelete(t *testing.T) {
	t.Run("author deletes with next sequence", func(t *testing.T) {
		f := newFixture(t)
		f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
		f.repo.On("Get", mock.Anything, "r1").Return(existing(2), nil)

		var staged events.Outgoing
		f.repo.On("Delete", mock.Anything, "r1", int64(2), mock.AnythingOfType("events.Outgoing")).
			Run(func(args mock.Arguments) { staged = args.Get(3).(events.Outgoing) }).
			Return(nil)

		require.NoError(t, f.svc.Delete(context.Background(), author, "r1"))
		env, err := events.ReviewDeletedTopic.Decode(staged.Body)
		require.NoError(t, err)
		assert.Equal(t, events.ReviewDeleted{ID: "r1", TourID: "t1", Sequence: 3}, env.Payload)
	})

	t.Run("admin skips ban check", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("Get", mock.Anything, "r1").Return(existing(0), nil)
		f.repo.On("Delete", mock.Anything, "r1", int64(0), mock.Anything).Return(nil)

		require.NoError(t, f.svc.Delete(context.Background(), admin, "r1"))
		f.bans.AssertNotCalled(t, "IsBanned", mock.Anything, mock.Anything)
	})

	t.Run("stranger forbidden", func(t *testing.T) {
		f := newFixture(t)
		f.bans.On("IsBanned", mock.Anything, "u2").Return(false, nil)
		f.repo.On("Get", mock.Anything, "r1").Return(existing(0), nil)

		err := f.svc.Delete(context.Background(), domain.Actor{UserID: "u2", Role: "user"}, "r1")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestListByTour_ClampsPaging(t *testing.T) {
	f := newFixture(t)
	f.repo.On("ListByTour", mock.Anything, "t1", 20, 0).Return([]domain.Review{}, nil)

	_, err := f.svc.ListByTour(context.Background(), "t1", 0, -1)
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}
