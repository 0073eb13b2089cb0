package replica

import (
	"context"
	"testing"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/baechuer/tour-booking/pkg/broker/memory"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tourReplicaRegistry(store Store[tour]) *events.Registry {
	reg := events.NewRegistry()
	events.Handle(reg, events.TourCreatedTopic, func(ctx context.Context, env events.Envelope[events.TourCreated]) broker.Result {
		p := env.Payload
		return Decide(Seed(ctx, store, Record[tour]{ID: p.ID, Sequence: p.Sequence, Data: tour{Name: p.Name, Price: p.Price}}))
	})
	events.Handle(reg, events.TourUpdatedTopic, func(ctx context.Context, env events.Envelope[events.TourUpdated]) broker.Result {
		p := env.Payload
		return Decide(Advance(ctx, store, p.ID, p.Sequence, func(tour) (tour, error) {
			return tour{Name: p.Name, Price: p.Price}, nil
		}))
	})
	return reg
}

func publish[T any](t *testing.T, bus broker.Publisher, topic events.Topic[T], payload T) {
	t.Helper()
	_, err := events.NewPublisher(bus, topic, "tour-service").Publish(context.Background(), payload, "")
	require.NoError(t, err)
}

func TestOrderIndependence_OverBus(t *testing.T) {
	ctx := context.Background()

	run := func(updates []int64) Record[tour] {
		bus := memory.New()
		store := NewMemoryStore[tour]()
		require.NoError(t, tourReplicaRegistry(store).SubscribeAll(ctx, bus, "booking-service"))

		publish(t, bus, events.TourCreatedTopic, events.TourCreated{ID: "t1", Name: "v0", Price: 100, Sequence: 0})
		for _, seq := range updates {
			publish(t, bus, events.TourUpdatedTopic, events.TourUpdated{
				ID: "t1", Name: "v" + string(rune('0'+seq)), Price: 100 + seq, Sequence: seq,
			})
		}
		bus.Drain(ctx)

		assert.Equal(t, 0, bus.Pending("booking-service.tour:updated"))
		rec, err := store.Get(ctx, "t1")
		require.NoError(t, err)
		return rec
	}

	inOrder := run([]int64{1, 2})
	shuffled := run([]int64{2, 1})
	withDup := run([]int64{2, 1, 2, 1})

	assert.Equal(t, int64(2), inOrder.Sequence)
	assert.Equal(t, "v2", inOrder.Data.Name)
	assert.Equal(t, inOrder, shuffled)
	assert.Equal(t, inOrder, withDup)
}
