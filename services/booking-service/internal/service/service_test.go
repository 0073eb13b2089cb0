package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/booking-service/internal/domain"
	"github.com/baechuer/tour-booking/services/booking-service/internal/infrastructure/memstore"
	"github.com/baechuer/tour-booking/services/booking-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBans struct{ mock.Mock }

func (m *MockBans) IsBanned(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

var (
	owner = domain.Actor{UserID: "u1", Role: "user"}
	other = domain.Actor{UserID: "u2", Role: "user"}
	admin = domain.Actor{UserID: "a1", Role: "admin"}
	now   = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
)

func setup(t *testing.T) (*service.BookingService, *memstore.Store, *MockBans) {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Tours.Insert(context.Background(), replica.Record[domain.Tour]{
		ID: "t1", Sequence: 0, Data: domain.Tour{ID: "t1", Name: "Alps", Price: 120000},
	}))
	bans := &MockBans{}
	svc := service.NewBookingService(store, bans, 15*time.Minute).WithClock(func() time.Time { return now })
	return svc, store, bans
}

func TestCreate(t *testing.T) {
	ctx := appctx.WithRequestID(context.Background(), "req-1")

	t.Run("success stages booking:made", func(t *testing.T) {
		svc, store, bans := setup(t)
		bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)

		b, err := svc.Create(ctx, owner, "t1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, b.Status)
		assert.Equal(t, int64(120000), b.Price)
		assert.Equal(t, now.Add(15*time.Minute), b.Expiration)
		assert.Equal(t, []string{string(events.SubjectBookingMade)}, store.Staged())
		bans.AssertExpectations(t)
	})

	t.Run("banned user", func(t *testing.T) {
		svc, store, bans := setup(t)
		bans.On("IsBanned", mock.Anything, "u1").Return(true, nil)

		_, err := svc.Create(ctx, owner, "t1")
		assert.ErrorIs(t, err, domain.ErrUserBanned)
		assert.Empty(t, store.Staged())
	})

	t.Run("ban lookup failure", func(t *testing.T) {
		svc, _, bans := setup(t)
		bans.On("IsBanned", mock.Anything, "u1").Return(false, errors.New("redis down"))

		_, err := svc.Create(ctx, owner, "t1")
		assert.ErrorContains(t, err, "redis down")
	})

	t.Run("unknown tour", func(t *testing.T) {
		svc, _, bans := setup(t)
		bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)

		_, err := svc.Create(ctx, owner, "nope")
		assert.ErrorIs(t, err, domain.ErrTourNotFound)
	})

	t.Run("tour already booked", func(t *testing.T) {
		svc, _, bans := setup(t)
		bans.On("IsBanned", mock.Anything, mock.Anything).Return(false, nil)

		_, err := svc.Create(ctx, owner, "t1")
		require.NoError(t, err)
		_, err = svc.Create(ctx, other, "t1")
		assert.ErrorIs(t, err, domain.ErrTourAlreadyBooked)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels", func(t *testing.T) {
		svc, store, bans := setup(t)
		bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
		b, err := svc.Create(ctx, owner, "t1")
		require.NoError(t, err)

		got, err := svc.Cancel(ctx, owner, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, got.Status)
		assert.Equal(t, []string{"booking:made", "booking:cancelled"}, store.Staged())
	})

	t.Run("admin skips ban lookup", func(t *testing.T) {
		svc, _, bans := setup(t)
		bans.On("IsBanned", mock.Anything, "u1").Return(false, nil).Once()
		b, err := svc.Create(ctx, owner, "t1")
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, admin, b.ID)
		require.NoError(t, err)
		bans.AssertNumberOfCalls(t, "IsBanned", 1)
	})

	t.Run("stranger forbidden", func(t *testing.T) {
		svc, _, bans := setup(t)
		bans.On("IsBanned", mock.Anything, mock.Anything).Return(false, nil)
		b, err := svc.Create(ctx, owner, "t1")
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, other, b.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("completed conflicts", func(t *testing.T) {
		svc, _, bans := setup(t)
		bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
		b, err := svc.Create(ctx, owner, "t1")
		require.NoError(t, err)
		changed, err := svc.Complete(ctx, b.ID)
		require.NoError(t, err)
		require.True(t, changed)

		_, err = svc.Cancel(ctx, owner, b.ID)
		assert.ErrorIs(t, err, domain.ErrBookingCompleted)
	})

	t.Run("banned owner", func(t *testing.T) {
		svc, _, bans := setup(t)
		bans.On("IsBanned", mock.Anything, "u1").Return(false, nil).Once()
		b, err := svc.Create(ctx, owner, "t1")
		require.NoError(t, err)

		bans.On("IsBanned", mock.Anything, "u1").Return(true, nil)
		_, err = svc.Cancel(ctx, owner, b.ID)
		assert.ErrorIs(t, err, domain.ErrUserBanned)
	})
}

type staleRepo struct{ *memstore.Store }

func (staleRepo) Update(context.Context, domain.Booking, int64, events.Outgoing) error {
	return domain.ErrConcurrentUpdate
}

func TestComplete_ConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Tours.Insert(ctx, replica.Record[domain.Tour]{ID: "t1", Data: domain.Tour{ID: "t1"}}))
	bans := &MockBans{}
	bans.On("IsBanned", mock.Anything, mock.Anything).Return(false, nil)

	b, err := service.NewBookingService(store, bans, time.Minute).Create(ctx, owner, "t1")
	require.NoError(t, err)

	svc := service.NewBookingService(staleRepo{store}, bans, time.Minute)
	_, err = svc.Complete(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	svc, _, bans := setup(t)
	bans.On("IsBanned", mock.Anything, mock.Anything).Return(false, nil)
	b, err := svc.Create(ctx, owner, "t1")
	require.NoError(t, err)

	_, err = svc.Get(ctx, owner, b.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, admin, b.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, other, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Get(ctx, owner, "missing")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	mine, err := svc.ListMine(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
