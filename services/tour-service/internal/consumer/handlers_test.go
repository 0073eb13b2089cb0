package consumer

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker/memory"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
	"github.com/baechuer/tour-booking/services/tour-service/internal/infrastructure/memstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const group = "tour-service"

func setup(t *testing.T) (*memory.Bus, *memstore.Store) {
	t.Helper()
	bus := memory.New()
	store := memstore.New()
	store.Put(domain.Tour{ID: "t1", Name: "Forest Hiker", Price: 39700, Difficulty: domain.DifficultyEasy, Duration: 5, GroupSize: 25, Sequence: 2})

	reg := events.NewRegistry()
	Register(reg, Deps{Bookings: store.Bookings, Reviews: store.Reviews, Aggregates: store, Log: zerolog.New(io.Discard)})
	require.NoError(t, reg.SubscribeAll(context.Background(), bus, group))
	return bus, store
}

func publish[T any](t *testing.T, bus *memory.Bus, topic events.Topic[T], payload T) {
	t.Helper()
	_, err := events.NewPublisher(bus, topic, "test").Publish(context.Background(), payload, "")
	require.NoError(t, err)
}

func tour(t *testing.T, s *memstore.Store) domain.Tour {
	t.Helper()
	got, err := s.Get(context.Background(), "t1")
	require.NoError(t, err)
	return got
}

func review(id string, rating int, seq int64) events.ReviewCreated {
	return events.ReviewCreated{ID: id, TourID: "t1", UserID: "u-" + id, Rating: rating, Sequence: seq}
}

func TestReviewCreated_StaleDuplicateLeavesAggregate(t *testing.T) {
	bus, store := setup(t)
	ctx := context.Background()

	publish(t, bus, events.ReviewCreatedTopic, review("r1", 5, 0))
	publish(t, bus, events.ReviewCreatedTopic, review("r2", 4, 0))
	bus.Drain(ctx)

	first := tour(t, store)
	assert.Equal(t, 4.5, first.RatingsAverage)
	assert.Equal(t, 2, first.RatingsCount)
	assert.Equal(t, int64(2), first.Sequence, "derived fields never bump the sequence")

	publish(t, bus, events.ReviewCreatedTopic, review("r1", 5, 0))
	bus.Drain(ctx)

	assert.Equal(t, first, tour(t, store))
	assert.Empty(t, bus.Dead(group+".review:created"))
}

func TestReviewLifecycle(t *testing.T) {
	bus, store := setup(t)
	ctx := context.Background()

	publish(t, bus, events.ReviewCreatedTopic, review("r1", 5, 0))
	publish(t, bus, events.ReviewCreatedTopic, review("r2", 3, 0))
	publish(t, bus, events.ReviewUpdatedTopic, events.ReviewUpdated(review("r2", 1, 1)))
	bus.Drain(ctx)

	assert.Equal(t, 3.0, tour(t, store).RatingsAverage)

	publish(t, bus, events.ReviewDeletedTopic, events.ReviewDeleted{ID: "r1", TourID: "t1", Sequence: 1})
	bus.Drain(ctx)

	got := tour(t, store)
	assert.Equal(t, 1.0, got.RatingsAverage)
	assert.Equal(t, 1, got.RatingsCount)

	// a late update for the deleted review is a duplicate against the tombstone
	publish(t, bus, events.ReviewUpdatedTopic, events.ReviewUpdated(review("r1", 2, 1)))
	bus.Drain(ctx)
	assert.Equal(t, got, tour(t, store))
	assert.Equal(t, 0, bus.Pending(group+".review:updated"))
}

func TestReviewEvents_OutOfOrder(t *testing.T) {
	bus, store := setup(t)
	ctx := context.Background()

	publish(t, bus, events.ReviewCreatedTopic, review("r1", 2, 0))
	publish(t, bus, events.ReviewUpdatedTopic, events.ReviewUpdated(review("r1", 5, 2)))
	bus.Drain(ctx)
	assert.Equal(t, 2.0, tour(t, store).RatingsAverage, "sequence 2 waits for 1")

	publish(t, bus, events.ReviewUpdatedTopic, events.ReviewUpdated(review("r1", 4, 1)))
	bus.Drain(ctx)

	rec, err := store.Reviews.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Sequence)
	assert.Equal(t, 5.0, tour(t, store).RatingsAverage)
}

func TestBookingRefTracksActiveBooking(t *testing.T) {
	bus, store := setup(t)
	ctx := context.Background()
	exp := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)

	publish(t, bus, events.BookingMadeTopic, events.BookingMade{
		ID: "b1", Expiration: exp, Status: "pending", Tour: events.TourRef{ID: "t1", Price: 39700}, UserID: "u1", Sequence: 0,
	})
	bus.Drain(ctx)
	assert.Equal(t, "b1", tour(t, store).BookingID)

	publish(t, bus, events.BookingCancelledTopic, events.BookingCancelled{ID: "b1", Tour: events.TourRef{ID: "t1"}, Sequence: 1})
	bus.Drain(ctx)
	assert.Equal(t, "", tour(t, store).BookingID)

	publish(t, bus, events.BookingMadeTopic, events.BookingMade{
		ID: "b2", Expiration: exp, Status: "pending", Tour: events.TourRef{ID: "t1", Price: 39700}, UserID: "u2", Sequence: 0,
	})
	publish(t, bus, events.BookingCompletedTopic, events.BookingCompleted{ID: "b2", Tour: events.TourRef{ID: "t1"}, Sequence: 1})
	bus.Drain(ctx)

	got := tour(t, store)
	assert.Equal(t, "b2", got.BookingID)
	assert.Equal(t, int64(2), got.Sequence)
}

func TestBookingStatusBeforeSeedIsHeld(t *testing.T) {
	bus, store := setup(t)
	ctx := context.Background()

	publish(t, bus, events.BookingCancelledTopic, events.BookingCancelled{ID: "b1", Tour: events.TourRef{ID: "t1"}, Sequence: 1})
	bus.Drain(ctx)
	assert.Equal(t, 1, bus.Pending(group+".booking:cancelled"))

	publish(t, bus, events.BookingMadeTopic, events.BookingMade{
		ID: "b1", Status: "pending", Tour: events.TourRef{ID: "t1"}, UserID: "u1", Sequence: 0,
	})
	bus.Drain(ctx)

	assert.Equal(t, "", tour(t, store).BookingID)
	assert.Equal(t, 0, bus.Pending(group+".booking:cancelled"))
}

func TestPoisonMessageRejected(t *testing.T) {
	bus, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, string(events.SubjectReviewCreated), "m1", []byte("nope")))
	bus.Drain(ctx)

	assert.Len(t, bus.Dead(group+".review:created"), 1)
}
