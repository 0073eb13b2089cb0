package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
	"github.com/baechuer/tour-booking/services/tour-service/internal/infrastructure/memstore"
	"github.com/baechuer/tour-booking/services/tour-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bans map[string]bool

func (b bans) IsBanned(_ context.Context, userID string) (bool, error) {
	if userID == "broken" {
		return false, errors.New("redis down")
	}
	return b[userID], nil
}

var (
	now   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	admin = domain.Actor{UserID: "a1", Role: "admin"}
)

func fields() domain.Fields {
	return domain.Fields{Name: "Forest Hiker", Price: 39700, Difficulty: domain.DifficultyEasy, Duration: 5, GroupSize: 25}
}

func newService() (*service.TourService, *memstore.Store) {
	store := memstore.New()
	svc := service.NewTourService(store, bans{"a-banned": true}).WithClock(func() time.Time { return now })
	return svc, store
}

func TestCreate(t *testing.T) {
	svc, store := newService()
	ctx := appctx.WithRequestID(context.Background(), "req-7")

	tour, err := svc.Create(ctx, admin, fields())
	require.NoError(t, err)
	assert.Equal(t, int64(0), tour.Sequence)

	staged := store.Staged()
	require.Len(t, staged, 1)
	env, err := events.TourCreatedTopic.Decode(staged[0].Body)
	require.NoError(t, err)
	assert.Equal(t, events.TourCreated{
		ID: tour.ID, Name: "Forest Hiker", Price: 39700, Difficulty: "easy", Duration: 5, GroupSize: 25, Sequence: 0,
	}, env.Payload)
	assert.Equal(t, "req-7", env.TraceID)

	_, err = svc.Create(ctx, admin, fields())
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		actor domain.Actor
		want  error
	}{
		{"not admin", domain.Actor{UserID: "u1", Role: "user"}, domain.ErrForbidden},
		{"banned admin", domain.Actor{UserID: "a-banned", Role: "admin"}, domain.ErrUserBanned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService()
			_, err := svc.Create(context.Background(), tt.actor, fields())
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.Staged())
		})
	}

	svc, _ := newService()
	_, err := svc.Create(context.Background(), domain.Actor{UserID: "broken", Role: "admin"}, fields())
	assert.ErrorContains(t, err, "redis down")
}

func TestUpdate(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	tour, err := svc.Create(ctx, admin, fields())
	require.NoError(t, err)

	price := int64(42000)
	updated, err := svc.Update(ctx, admin, tour.ID, domain.Patch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Sequence)

	staged := store.Staged()
	require.Len(t, staged, 2)
	env, err := events.TourUpdatedTopic.Decode(staged[1].Body)
	require.NoError(t, err)
	assert.Equal(t, int64(42000), env.Payload.Price)
	assert.Equal(t, int64(1), env.Payload.Sequence)

	// same value again: nothing changes, nothing is staged
	again, err := svc.Update(ctx, admin, tour.ID, domain.Patch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Sequence)
	assert.Len(t, store.Staged(), 2)

	_, err = svc.Update(ctx, admin, "missing", domain.Patch{Price: &price})
	assert.ErrorIs(t, err, domain.ErrTourNotFound)
}

func TestUpdate_KeepsDerivedFields(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	store.Put(domain.Tour{
		ID: "t1", Name: "Sea Explorer", Price: 49700, Difficulty: domain.DifficultyMedium, Duration: 7, GroupSize: 15,
		BookingID: "b1", RatingsAverage: 4.8, RatingsCount: 6, Sequence: 3,
	})

	name := "Sea Explorer II"
	_, err := svc.Update(ctx, admin, "t1", domain.Patch{Name: &name})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.BookingID)
	assert.Equal(t, 4.8, got.RatingsAverage)
	assert.Equal(t, int64(4), got.Sequence)
}

func TestList(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	store.Put(domain.Tour{ID: "t1", Name: "A", Difficulty: domain.DifficultyEasy, CreatedAt: now})
	store.Put(domain.Tour{ID: "t2", Name: "B", Difficulty: domain.DifficultyDifficult, CreatedAt: now.Add(time.Minute)})

	all, err := svc.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t2", all[0].ID, "newest first")

	easy, err := svc.List(ctx, domain.ListFilter{Difficulty: domain.DifficultyEasy})
	require.NoError(t, err)
	require.Len(t, easy, 1)

	_, err = svc.List(ctx, domain.ListFilter{Difficulty: "extreme"})
	assert.ErrorIs(t, err, domain.ErrInvalidTour)
}

func TestDelete(t *testing.T) {
	svc, store := newService()
	ctx := appctx.WithRequestID(context.Background(), "req-8")
	store.Put(domain.Tour{ID: "t1", Name: "Sea Explorer", Price: 49700, Difficulty: domain.DifficultyMedium, Duration: 7, GroupSize: 15, Sequence: 2})

	require.NoError(t, svc.Delete(ctx, admin, "t1"))

	_, err := svc.Get(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrTourNotFound)

	staged := store.Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, events.SubjectTourDeleted, staged[0].Subject)
	env, err := events.TourDeletedTopic.Decode(staged[0].Body)
	require.NoError(t, err)
	assert.Equal(t, events.TourDeleted{ID: "t1", Sequence: 3}, env.Payload)
	assert.Equal(t, "req-8", env.TraceID)

	assert.ErrorIs(t, svc.Delete(ctx, admin, "t1"), domain.ErrTourNotFound)
}

func TestDelete_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		actor domain.Actor
		tour  domain.Tour
		want  error
	}{
		{"not admin", domain.Actor{UserID: "u1", Role: "user"}, domain.Tour{ID: "t1", Name: "Sea Explorer"}, domain.ErrForbidden},
		{"banned admin", domain.Actor{UserID: "a-banned", Role: "admin"}, domain.Tour{ID: "t1", Name: "Sea Explorer"}, domain.ErrUserBanned},
		{"booked", admin, domain.Tour{ID: "t1", Name: "Sea Explorer", BookingID: "b1"}, domain.ErrTourBooked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService()
			store.Put(tt.tour)
			assert.ErrorIs(t, svc.Delete(context.Background(), tt.actor, "t1"), tt.want)
			assert.Empty(t, store.Staged())

			_, err := svc.Get(context.Background(), "t1")
			assert.NoError(t, err)
		})
	}
}
